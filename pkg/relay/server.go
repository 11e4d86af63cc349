package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-go-golems/veriwire/pkg/session"
	"github.com/go-go-golems/veriwire/pkg/verify"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const MediaStreamPath = "/media-stream"

// Task is a background loop run for the lifetime of the server.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

// Server accepts telephony media-stream connections and runs one relay call
// per connection.
type Server struct {
	relay    *Relay
	sessions session.Store[verify.CallState]
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	tasks    []namedTask

	mu      sync.Mutex
	baseCtx context.Context
	calls   sync.WaitGroup
}

func NewServer(addr string, r *Relay, sessions session.Store[verify.CallState]) *Server {
	s := &Server{
		relay:    r,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Media streams are opened by the telephony provider, not a browser.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx: context.Background(),
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// AddTask registers a loop started by Run, e.g. the session sweeper or the
// audit recorder.
func (s *Server) AddTask(name string, t Task) {
	s.tasks = append(s.tasks, namedTask{name: name, run: t})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(MediaStreamPath, s.handleMediaStream)
	mux.HandleFunc("/calls/", s.handleCall)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Msg("media stream upgrade failed")
		return
	}
	s.calls.Add(1)
	defer s.calls.Done()
	log.Info().Str("component", "relay").Str("remote", r.RemoteAddr).Msg("media stream connected")
	if err := s.relay.Serve(s.context(), conn); err != nil {
		log.Warn().Err(err).Str("component", "relay").Msg("media stream closed with error")
		return
	}
	log.Info().Str("component", "relay").Str("remote", r.RemoteAddr).Msg("media stream closed")
}

type callView struct {
	CallID        string    `json:"call_id"`
	Stage         string    `json:"stage"`
	Verified      bool      `json:"verified"`
	CardVerified  bool      `json:"card_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	Intent        string    `json:"intent,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	RiskFlag      bool      `json:"risk_flag"`
	Done          bool      `json:"done"`
	Outcome       string    `json:"outcome,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// handleCall serves GET /calls/{id}. Card digits, phone numbers and the
// liveness phrase are never included.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/calls/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "bad call id", http.StatusBadRequest)
		return
	}
	st, meta, ok, err := s.sessions.Peek(r.Context(), id)
	if err != nil {
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(callView{
		CallID:        id,
		Stage:         string(st.Stage),
		Verified:      st.Verified,
		CardVerified:  st.CardVerified,
		PhoneVerified: st.PhoneVerified,
		Intent:        string(st.Intent),
		PaymentID:     st.PaymentID,
		RiskFlag:      st.RiskFlag,
		Done:          st.Done,
		Outcome:       st.Outcome,
		CreatedAt:     meta.CreatedAt,
		ExpiresAt:     meta.ExpiresAt,
	})
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM, then shuts down the
// HTTP server and cancels every open call.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	s.mu.Lock()
	s.baseCtx = srvCtx
	s.mu.Unlock()

	eg, egCtx := errgroup.WithContext(srvCtx)
	for _, t := range s.tasks {
		t := t
		eg.Go(func() error {
			log.Debug().Str("component", "server").Str("task", t.name).Msg("task started")
			if err := t.run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
				return errors.Wrapf(err, "task %s", t.name)
			}
			return nil
		})
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-egCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.calls.Wait()
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting relay server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
