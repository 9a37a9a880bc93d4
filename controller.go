package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haze-gate/admission-core/admitqueue"
	"github.com/haze-gate/admission-core/attack"
	"github.com/haze-gate/admission-core/bus"
	"github.com/haze-gate/admission-core/captcha"
	"github.com/haze-gate/admission-core/rejoin"
	"github.com/haze-gate/admission-core/reputation"
	"github.com/haze-gate/admission-core/verify"
)

// verificationPlatformY is the fixed Y level spec.md §4.7/§4.8 builds
// the Gravity/Collision platforms on.
const verificationPlatformY = 64

// OutcomeHandler receives the eventual AdmissionDecision for a
// handshake that did not resolve synchronously within Decide — it was
// queued during UNDER_ATTACK (spec.md §4.3), and only resolves once the
// Admission Queue drains it back into step 6. Invoked at most once,
// from a goroutine that the queue's drain starts for that entry.
type OutcomeHandler func(AdmissionDecision)

// Controller is the Admission Controller of spec.md §4.1: the
// composition root owning the Attack Detector, Admission Queue,
// Reputation Cache, Rejoin Cache, and the verification Session Manager.
type Controller struct {
	config Configuration
	log    zerolog.Logger

	attackDetector *attack.Detector
	queue          *admitqueue.Queue
	reputation     *reputation.Cache
	rejoin         *rejoin.Cache
	sessions       *verify.Manager
	captchaPool    *captcha.Pool
	publisher      bus.Publisher

	enabled int32

	liveMu sync.Mutex
	live   map[string]int

	attackWatchStop chan struct{}
}

// NewController wires every sub-component from cfg but starts nothing;
// call Enable to start the background loops, per spec.md §9's explicit
// lifecycle.
func NewController(cfg Configuration, log zerolog.Logger, publisher bus.Publisher) *Controller {
	if publisher == nil {
		publisher = bus.NewNoop()
	}

	c := &Controller{
		config:    cfg,
		log:       log,
		publisher: publisher,
		live:      make(map[string]int),
	}

	c.reputation = reputation.New(cfg.BlacklistThreshold, cfg.BlacklistTime, cfg.RememberTime, log, blacklistNotifierAdapter{publisher})
	c.rejoin = rejoin.New(cfg.RejoinValidTime)
	c.attackDetector = attack.New(cfg.MinPlayersForAttack, cfg.MinAttackDuration, log)
	c.queue = admitqueue.New(cfg.QueueMaxPolls, cfg.RejoinDelay, log)
	c.sessions = verify.NewManager(cfg.RememberTime, log, c.onSessionTerminate)

	if cfg.MapCaptcha.Enabled {
		gen := captcha.NewGenerator(cfg.MapCaptcha.Alphabet, cfg.MapCaptcha.CodeLength, time.Now().UnixNano())
		if cfg.MapCaptcha.BackgroundPath != "" {
			if bg, err := captcha.LoadBackground(cfg.MapCaptcha.BackgroundPath); err != nil {
				log.Warn().Err(err).Str("path", cfg.MapCaptcha.BackgroundPath).Msg("falling back to solid captcha background")
			} else {
				gen.Background = bg
			}
		}
		c.captchaPool = captcha.NewPool(gen)
	}

	return c
}

// blacklistNotifierAdapter adapts bus.Publisher to reputation.BlacklistNotifier;
// the two interfaces already share a signature, so this is a pure type
// forwarder rather than a translation.
type blacklistNotifierAdapter struct {
	pub bus.Publisher
}

func (a blacklistNotifierAdapter) NotifyBlacklisted(source string, until time.Time) {
	a.pub.PublishSourceBlacklisted(source, until)
}

// Enable starts every background loop (Attack Detector tick, Queue
// drain, Reputation/Rejoin sweep, Session Manager sweep) and primes the
// CAPTCHA pool. Returns ErrAlreadyEnabled if called twice.
func (c *Controller) Enable() error {
	if !atomic.CompareAndSwapInt32(&c.enabled, 0, 1) {
		return ErrAlreadyEnabled
	}
	if err := c.config.compile(); err != nil {
		atomic.StoreInt32(&c.enabled, 0)
		return err
	}

	if c.captchaPool != nil {
		c.captchaPool.Prime(c.config.MapCaptcha.Precompute)
	}

	go c.attackDetector.Run()
	go c.queue.Run()
	go c.reputation.Run()
	go c.rejoin.Run()
	go c.sessions.Run()

	c.attackWatchStop = make(chan struct{})
	go c.watchAttackMode(c.attackWatchStop)

	return nil
}

// Disable stops every background loop started by Enable. The
// sub-components' stop channels are closed here and never recreated,
// so a later Enable does not restart their loops.
func (c *Controller) Disable() {
	if !atomic.CompareAndSwapInt32(&c.enabled, 1, 0) {
		return
	}

	close(c.attackWatchStop)
	c.attackDetector.Stop()
	c.queue.Stop()
	c.reputation.Stop()
	c.rejoin.Stop()
	c.sessions.Stop()
	c.publisher.Close()
}

// watchAttackMode publishes a bus notification on every Attack Detector
// mode transition. The detector itself has no notifier hook (unlike
// reputation.Cache), so the controller polls it at the same one-second
// cadence the detector ticks at, publishing only on an actual change.
func (c *Controller) watchAttackMode(stop chan struct{}) {
	last := c.attackDetector.Mode()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			mode := c.attackDetector.Mode()
			if mode != last {
				last = mode
				c.publisher.PublishAttackModeChanged(mode.String(), 0)
			}
		}
	}
}

// Dispatch forwards one inbound event to a live verification session.
// The protocol layer calls this for every packet it receives from a
// connection still inside Decide's step-7 wait.
func (c *Controller) Dispatch(sessionID uuid.UUID, e verify.Event) {
	c.sessions.Dispatch(sessionID, e)
}

// ClientClosed tells the controller a connection closed while its
// session was still verifying.
func (c *Controller) ClientClosed(sessionID uuid.UUID) {
	c.sessions.Close(sessionID)
}

// onSessionTerminate is the verify.Manager-wide termination hook: it
// decrements the per-source live counter on every terminal transition
// (spec.md §4.6/DESIGN.md Open Question decision 4) and records a
// reputation failure for any Failed session except a peer-initiated
// close, which carries no signal about bot behaviour.
func (c *Controller) onSessionTerminate(s *verify.Session) {
	c.liveDecrement(s.Source)

	if s.State() == verify.Failed && s.FailReason() != ReasonClientClosed {
		c.reputation.RecordFailure(s.Source)
	}
}

func (c *Controller) liveCount(source string) int {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	return c.live[source]
}

func (c *Controller) liveIncrement(source string) {
	c.liveMu.Lock()
	c.live[source]++
	c.liveMu.Unlock()
}

func (c *Controller) liveDecrement(source string) {
	c.liveMu.Lock()
	if n := c.live[source]; n > 0 {
		if n == 1 {
			delete(c.live, source)
		} else {
			c.live[source] = n - 1
		}
	}
	c.liveMu.Unlock()
}

// Decide executes the seven-step predicate chain of spec.md §4.1.
//
// Steps 1-4 and 6 resolve synchronously, within this call. Step 5
// (reaching the Admission Queue during UNDER_ATTACK) also resolves
// synchronously to Queue; the eventual decision for a queued handshake
// arrives later through onOutcome, once the queue drains it back into
// step 6, since no caller is left blocked in this call to return it to.
//
// Step 7 (verification) blocks this call until the session reaches a
// terminal state. onSessionCreated is invoked synchronously, before
// that wait begins, with the session's ID — the protocol layer needs it
// immediately, to route Dispatch/ClientClosed calls for this connection
// from whatever goroutine is reading its socket while this call is
// still blocked deeper in the stack. onSessionCreated is never called
// for a decision that doesn't reach verification.
//
// send pushes outbound packets (including the Queue actionbar and every
// packet a Check emits) to the protocol layer; onOutcome may be nil if
// the caller doesn't expect to ever see Queue.
func (c *Controller) Decide(
	ctx context.Context,
	h Handshake,
	send func(verify.Packet),
	onSessionCreated func(uuid.UUID),
	onOutcome OutcomeHandler,
) (AdmissionDecision, error) {
	if atomic.LoadInt32(&c.enabled) == 0 {
		return AdmissionDecision{}, ErrNotEnabled
	}

	source := h.Source.String()

	// Step 1: name validation.
	if !c.config.compiledName.MatchString(h.Username) {
		return hardDeny(ReasonInvalidName), nil
	}

	// Step 2: blacklist.
	if c.reputation.IsBlacklisted(source) {
		return hardDeny(ReasonBlacklisted), nil
	}

	// Step 3: per-IP live connection limit.
	if c.liveCount(source) >= c.config.MaxOnlinePerIp {
		return hardDeny(ReasonIPLimit), nil
	}

	// Step 4: consume a live rejoin entry and fall straight through to
	// step 7, skipping step 6's ForceRejoin re-check entirely (an entry
	// only exists because step 6 already issued it once).
	if c.rejoin.Consume(h.Username, source) {
		return c.runVerification(ctx, h, send, onSessionCreated), nil
	}

	// Step 5: attack-mode admission.
	c.attackDetector.Increment()
	if c.attackDetector.Mode() == attack.UnderAttack {
		if c.queue.Throttled(source) {
			return softDeny(ReasonWaitBeforeReconnecting, false), nil
		}
		send(verify.HoldOpenWithActionbar{MessageKey: "queued"})
		c.queue.Enqueue(source, func() {
			// step6and7 blocks on verification; run it off the drain
			// loop's own goroutine so one resumed handshake can't stall
			// every other entry's drain tick.
			go func() {
				decision := c.step6and7(context.Background(), h, send, onSessionCreated)
				if onOutcome != nil {
					onOutcome(decision)
				}
			}()
		})
		return queueDecision(), nil
	}

	// Steps 6-7, reached directly because the detector is Normal.
	return c.step6and7(ctx, h, send, onSessionCreated), nil
}

// step6and7 is steps 6 and 7 of the predicate chain, shared by the
// direct path and the queue's drain re-entry.
func (c *Controller) step6and7(ctx context.Context, h Handshake, send func(verify.Packet), onSessionCreated func(uuid.UUID)) AdmissionDecision {
	source := h.Source.String()

	if c.config.ForceRejoin {
		c.rejoin.Issue(h.Username, source)
		return softDeny(ReasonPleaseReconnect, true)
	}

	return c.runVerification(ctx, h, send, onSessionCreated)
}

// runVerification creates a VerificationSession, publishes its ID via
// onSessionCreated, and blocks until it reaches Passed or Failed,
// returning Admit or HardDeny(failReason) accordingly, per spec.md
// §4.6. Cancelling ctx fails the session with client_closed rather than
// leaving it to expire on its own deadline.
func (c *Controller) runVerification(ctx context.Context, h Handshake, send func(verify.Packet), onSessionCreated func(uuid.UUID)) AdmissionDecision {
	source := h.Source.String()

	c.liveIncrement(source)
	session := c.sessions.Create(h.Username, source, c.buildChecks(), c.config.VerificationDeadline, send)

	if onSessionCreated != nil {
		onSessionCreated(session.ID)
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		c.sessions.Close(session.ID)
		<-session.Done()
	}

	if session.State() == verify.Passed {
		return admitDecision()
	}
	return hardDeny(session.FailReason())
}

func (c *Controller) buildChecks() []verify.Check {
	var checks []verify.Check

	if c.config.Gravity.Enabled {
		checks = append(checks, &verify.GravityCheck{
			PlatformY:        verificationPlatformY,
			MaxMovementTicks: c.config.Gravity.MaxMovementTicks,
		})
	}
	if c.config.CollisionEnabled {
		checks = append(checks, &verify.CollisionCheck{PlatformY: verificationPlatformY})
	}
	if c.config.VehicleEnabled {
		checks = append(checks, &verify.VehicleCheck{})
	}
	if c.config.MapCaptcha.Enabled && c.captchaPool != nil {
		checks = append(checks, &verify.CaptchaCheck{
			Pool:        c.captchaPool,
			MaxTries:    c.config.MapCaptcha.MaxTries,
			MaxDuration: c.config.MapCaptcha.MaxDuration,
			Log:         c.log,
		})
	}
	if c.config.ClientBrandEnabled {
		checks = append(checks, &verify.ClientBrandCheck{ValidBrand: c.config.compiledBrand})
	}

	return checks
}

// Snapshot is the read-only view of live controller state the admin
// package exposes over its HTTP/WS surface.
type Snapshot struct {
	AttackMode   string `json:"attack_mode"`
	QueueDepth   int    `json:"queue_depth"`
	LiveSessions int    `json:"live_sessions"`
	CaptchaPool  int    `json:"captcha_pool_size"`
}

// Snapshot returns a point-in-time view of the controller's live state.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		AttackMode:   c.attackDetector.Mode().String(),
		QueueDepth:   c.queue.Len(),
		LiveSessions: c.sessions.Count(),
	}
	if c.captchaPool != nil {
		snap.CaptchaPool = c.captchaPool.Size()
	}
	return snap
}
