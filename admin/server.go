// Package admin exposes a read-only view of the admission core's live
// state over HTTP and a periodic websocket push, grounded on the
// teacher's migrated nhooyr.io/websocket client (gateway/shard.go) and
// its older raw status API (old/wsapi.go), here run as a server instead
// of a client since nothing here drives a protocol handshake.
package admin

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/haze-gate/admission-core"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotSource supplies the live state an admin Server exposes. Both
// *core.Controller and a fake in tests satisfy it.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// Server serves /snapshot (one-shot JSON) and /stream (a websocket
// pushing the same snapshot once a second) for as long as the
// underlying controller is running.
type Server struct {
	source   SnapshotSource
	log      zerolog.Logger
	interval time.Duration

	httpServer *http.Server
}

// NewServer builds a Server bound to addr. Call Run to start serving;
// it blocks like http.Server.ListenAndServe does.
func NewServer(addr string, source SnapshotSource, log zerolog.Logger) *Server {
	s := &Server{
		source:   source,
		log:      log,
		interval: time.Second,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/stream", s.handleStream)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Run starts serving and blocks until Shutdown is called or the
// listener fails. Intended to be started in its own goroutine from
// Controller.Enable's caller.
func (s *Server) Run() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server. Websocket streams already
// accepted on /stream are hijacked connections, which http.Server's
// Shutdown neither closes nor waits for.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsonAPI.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode admin snapshot")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to accept admin stream websocket")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, err := jsonAPI.Marshal(s.source.Snapshot())
			if err != nil {
				s.log.Warn().Err(err).Msg("failed to marshal admin snapshot")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
				s.log.Debug().Err(err).Msg("admin stream write failed, closing")
				return
			}
		}
	}
}
