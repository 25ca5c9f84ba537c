// Package health serves the keep-alive HTTP endpoint expected by hosting
// platforms that idle out silent workers, plus a small status page.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mtbot/internal/digest"
	"mtbot/internal/eventbus"
	logx "mtbot/pkg/logx"
)

type Service struct {
	addr string
	log  logx.Logger
	bus  eventbus.Bus[digest.Result]

	srv *http.Server

	mu      sync.RWMutex
	started time.Time
	last    *digest.Result
}

func New(addr string, bus eventbus.Bus[digest.Result], log logx.Logger) *Service {
	if addr == "" {
		addr = ":8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{addr: addr, bus: bus, log: log, started: time.Now()}
}

// Start begins serving and, if a bus is wired, tracking cycle results.
// Blocks until ctx is done or the listener fails.
func (s *Service) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(8)
		defer unsub()
		go func() {
			for ev := range ch {
				res := ev.Data
				s.mu.Lock()
				s.last = &res
				s.mu.Unlock()
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("health server listening", logx.String("addr", s.addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shctx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h3>mtbot</h3><p>up %s</p></body></html>",
		time.Since(s.started).Round(time.Second))
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if last != nil {
		body["last_cycle"] = map[string]any{
			"started":    last.Started.Format(time.RFC3339),
			"fetched":    last.Fetched,
			"fresh":      last.Fresh,
			"posted":     len(last.Posted),
			"suppressed": last.Suppressed,
			"errors":     len(last.Errors),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
