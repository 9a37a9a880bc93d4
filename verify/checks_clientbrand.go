package verify

import "regexp"

const clientBrandPrefix = "clientbrand."

// ClientBrandCheck requires the first `minecraft:brand` plugin message
// to match a configured pattern, per spec.md §4.11. A client that never
// sends one is caught by the session's overall deadline, not by this
// check.
type ClientBrandCheck struct {
	ValidBrand *regexp.Regexp
}

type clientBrandState struct {
	seen bool
}

func (c *ClientBrandCheck) state(s *Session) *clientBrandState {
	v, ok := s.Get(clientBrandPrefix + "state")
	if !ok {
		st := &clientBrandState{}
		s.Set(clientBrandPrefix+"state", st)
		return st
	}
	return v.(*clientBrandState)
}

func (c *ClientBrandCheck) Initialize(s *Session) {}

func (c *ClientBrandCheck) OnEvent(s *Session, e Event) Result {
	msg, ok := e.(PluginMessageBrand)
	if !ok {
		return pending()
	}

	st := c.state(s)
	if st.seen {
		return pending()
	}
	st.seen = true

	if c.ValidBrand == nil || c.ValidBrand.MatchString(msg.Brand) {
		return pass()
	}
	return fail("invalid_brand")
}

func (c *ClientBrandCheck) Reset(s *Session) {
	s.Delete(clientBrandPrefix + "state")
}
