// Package attack implements the per-second admission-rate counter and
// the NORMAL/UNDER_ATTACK hysteresis state machine driving the
// Admission Queue, grounded on the teacher's shard heartbeat ticker
// (gateway/shard.go's one-tick-per-interval select loop) generalized
// from a single shard's heartbeat to a process-wide counter.
package attack

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Mode is the Attack Detector's current posture.
type Mode int32

const (
	Normal Mode = iota
	UnderAttack
)

func (m Mode) String() string {
	if m == UnderAttack {
		return "under_attack"
	}
	return "normal"
}

// Detector counts admission decisions that reach step 5 of the
// Admission Controller's predicate chain and transitions between
// Normal and UnderAttack with hysteresis, per spec.md §4.2.
//
// Detector never fails: the tick loop is started once and runs for the
// process lifetime; clock skew only widens the hysteresis window, it
// never produces an error.
type Detector struct {
	minPlayersForAttack int
	minAttackDuration   time.Duration
	log                 zerolog.Logger

	counter int64 // atomic, incremented by Increment, read-and-reset by the tick loop

	mode      int32 // atomic Mode
	enteredAt atomic.Value // time.Time, valid once mode first becomes UnderAttack

	stop chan struct{}
}

// New constructs a Detector. Call Run in its own goroutine to start the
// one-second tick loop; Run returns once Stop is called.
func New(minPlayersForAttack int, minAttackDuration time.Duration, log zerolog.Logger) *Detector {
	d := &Detector{
		minPlayersForAttack: minPlayersForAttack,
		minAttackDuration:   minAttackDuration,
		log:                 log,
		stop:                make(chan struct{}),
	}
	d.enteredAt.Store(time.Time{})
	return d
}

// Increment records one admission decision reaching step 5. Safe to
// call concurrently from every handshake-handling goroutine.
func (d *Detector) Increment() {
	atomic.AddInt64(&d.counter, 1)
}

// Mode returns the detector's current mode.
func (d *Detector) Mode() Mode {
	return Mode(atomic.LoadInt32(&d.mode))
}

// Run drives the one-second tick loop until Stop is called. Intended to
// be started once, from the Controller's Enable, as its own goroutine.
func (d *Detector) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

// Stop ends the tick loop. Idempotent beyond the first call is not
// required by any caller in this core; Stop is called exactly once, by
// Controller.Disable.
func (d *Detector) Stop() {
	close(d.stop)
}

func (d *Detector) tick(now time.Time) {
	sampled := atomic.SwapInt64(&d.counter, 0)

	switch d.Mode() {
	case Normal:
		if int(sampled) >= d.minPlayersForAttack {
			atomic.StoreInt32(&d.mode, int32(UnderAttack))
			d.enteredAt.Store(now)
			d.log.Warn().Int64("count", sampled).Msg("attack detector entering under_attack")
		}
	case UnderAttack:
		enteredAt, _ := d.enteredAt.Load().(time.Time)
		if int(sampled) < d.minPlayersForAttack && now.Sub(enteredAt) >= d.minAttackDuration {
			atomic.StoreInt32(&d.mode, int32(Normal))
			d.log.Info().Msg("attack detector leaving under_attack")
		}
	}
}
