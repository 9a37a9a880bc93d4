package verify

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const captchaPrefix = "captcha."

// CaptchaArtifact is one pre-rendered puzzle: a map image to show the
// client and the answer a correct chat reply must match.
type CaptchaArtifact struct {
	MapID       int32
	PaletteData []byte
	Answer      string
}

// CaptchaPool supplies pre-rendered artifacts. The captcha package's
// Pool satisfies this; verify only needs the draw operation.
type CaptchaPool interface {
	Take() (CaptchaArtifact, bool)
}

// CaptchaCheck shows the client a CAPTCHA map image and requires a
// matching chat reply within MaxTries attempts and MaxDuration, per
// spec.md §4.10.
type CaptchaCheck struct {
	Pool        CaptchaPool
	MaxTries    int
	MaxDuration time.Duration
	Log         zerolog.Logger
}

type captchaState struct {
	skipped        bool
	answer         string
	remainingTries int
	startedAt      time.Time
}

func (c *CaptchaCheck) state(s *Session) *captchaState {
	v, ok := s.Get(captchaPrefix + "state")
	if !ok {
		st := &captchaState{}
		s.Set(captchaPrefix+"state", st)
		return st
	}
	return v.(*captchaState)
}

// Initialize draws one artifact from the pool. If the pool is empty,
// the check is skipped with a warning rather than failing the session
// for a resource-starvation condition it didn't cause, per spec.md
// §4.10/§7.
func (c *CaptchaCheck) Initialize(s *Session) {
	if c.MaxTries <= 0 {
		c.MaxTries = 3
	}
	st := c.state(s)

	artifact, ok := c.Pool.Take()
	if !ok {
		st.skipped = true
		c.Log.Warn().Str("username", s.Username).Msg("captcha pool empty, skipping check")
		return
	}

	st.answer = artifact.Answer
	st.remainingTries = c.MaxTries
	st.startedAt = time.Now()
	s.Send(MapImage{MapID: artifact.MapID, PaletteData: artifact.PaletteData})
}

// OnEvent implements the ChatMessage handling of spec.md §4.10. A
// skipped check (empty pool at Initialize) has no CaptchaArtifact to
// judge a reply against, so it passes on whatever event next arrives —
// there is no separate "Initialize can terminally decide" hook in the
// Check contract to short-circuit it sooner.
func (c *CaptchaCheck) OnEvent(s *Session, e Event) Result {
	st := c.state(s)
	if st.skipped {
		return pass()
	}

	line, ok := e.(ChatLine)
	if !ok {
		return pending()
	}

	if time.Since(st.startedAt) > c.MaxDuration {
		return fail("captcha_timeout")
	}
	if st.remainingTries == 0 {
		return fail("captcha_no_tries")
	}

	if strings.EqualFold(strings.TrimSpace(line.Text), st.answer) {
		return pass()
	}

	st.remainingTries--
	if st.remainingTries == 0 {
		return fail("captcha_failed")
	}
	return pending()
}

func (c *CaptchaCheck) Reset(s *Session) {
	s.Delete(captchaPrefix + "state")
}
