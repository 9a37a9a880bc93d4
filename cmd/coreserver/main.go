package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	core "github.com/haze-gate/admission-core"
	"github.com/haze-gate/admission-core/admin"
	"github.com/haze-gate/admission-core/bus"
	"github.com/haze-gate/admission-core/verify"
)

var zlog = zerolog.New(zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.Stamp,
}).With().Timestamp().Logger()

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	adminAddr := flag.String("admin-addr", "127.0.0.1:8089", "address the admin snapshot server listens on")
	natsAddress := flag.String("nats-address", "", "NATS address for admission-state notifications; empty disables publishing")
	natsSubject := flag.String("nats-subject", "admission-core.events", "NATS subject admission-state notifications publish to")
	smokeTest := flag.Bool("smoke-test", false, "run one loopback handshake through the controller and exit")
	flag.Parse()

	var publisher bus.Publisher = bus.NewNoop()
	if *natsAddress != "" {
		natsPub, err := bus.NewNatsPublisher(*natsAddress, *natsSubject, zlog)
		if err != nil {
			zlog.Fatal().Err(err).Msg("could not connect to nats")
		}
		publisher = natsPub
	}

	cfg := core.Default()
	if *smokeTest {
		// Only the cheapest check stays on, so the loopback handshake
		// below (which has no real client behind it) can reach a
		// terminal decision in well under its own timeout.
		cfg.Gravity.Enabled = false
		cfg.CollisionEnabled = false
		cfg.VehicleEnabled = false
		cfg.MapCaptcha.Enabled = false
	}
	controller := core.NewController(cfg, zlog, publisher)
	if err := controller.Enable(); err != nil {
		zlog.Fatal().Err(err).Msg("could not enable controller")
	}
	defer controller.Disable()

	adminServer := admin.NewServer(*adminAddr, controller, zlog)
	go func() {
		if err := adminServer.Run(); err != nil {
			zlog.Error().Err(err).Msg("admin server stopped")
		}
	}()

	if *smokeTest {
		runLoopbackHandshake(controller)
		return
	}

	zlog.Info().Str("admin_addr", *adminAddr).Msg("admission core running")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("admin server shutdown error")
	}
}

// runLoopbackHandshake drives a single handshake through the controller
// with no real transport behind it, proving every component wires
// together without standing up a listener. It logs every outbound
// packet and, once the session exists, sends one vanilla brand message,
// which is enough for the only check the smoke-test configuration
// leaves on, so a fresh build can be sanity-checked with a single flag.
func runLoopbackHandshake(controller *core.Controller) {
	h := core.Handshake{
		Username: "SmokeTestUser",
		Source:   core.NewSourceAddress("127.0.0.1"),
		Arrival:  time.Now(),
	}

	sessionID := make(chan uuid.UUID, 1)
	decisionCh := make(chan core.AdmissionDecision, 1)

	go func() {
		decision, err := controller.Decide(context.Background(), h, func(p verify.Packet) {
			zlog.Info().Interface("packet", p).Msg("loopback: outbound packet")
		}, func(id uuid.UUID) {
			sessionID <- id
		}, nil)
		if err != nil {
			zlog.Error().Err(err).Msg("loopback handshake failed")
			return
		}
		decisionCh <- decision
	}()

	select {
	case id := <-sessionID:
		zlog.Info().Str("session_id", id.String()).Msg("loopback: verification session created, sending clean brand reply")
		controller.Dispatch(id, verify.PluginMessageBrand{Brand: "vanilla"})
	case decision := <-decisionCh:
		zlog.Info().Str("kind", decision.Kind.String()).Str("reason", decision.Reason).Msg("loopback: decided without verification")
		return
	case <-time.After(5 * time.Second):
		zlog.Error().Msg("loopback: timed out waiting for a session")
		return
	}

	select {
	case decision := <-decisionCh:
		zlog.Info().Str("kind", decision.Kind.String()).Str("reason", decision.Reason).Msg("loopback: final decision")
	case <-time.After(5 * time.Second):
		zlog.Error().Msg("loopback: timed out waiting for a decision")
	}
}
