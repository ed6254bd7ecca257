package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"dailybudget/internal/services"
)

type Server struct {
	http.Server
	budget *services.BudgetService
	now    func() time.Time
}

// NewServer wires the JSON API routes. The now function is replaceable so
// tests can pin the clock; passing nil uses time.Now.
func NewServer(addr string, budget *services.BudgetService, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		budget: budget,
		now:    now,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("POST /api/users", s.withRequestLog(s.handleRegister))
	mux.HandleFunc("GET /api/users/{id}/status", s.withRequestLog(s.handleStatus))
	mux.HandleFunc("POST /api/users/{id}/transactions", s.withRequestLog(s.handleSpend))
	mux.HandleFunc("PUT /api/users/{id}/norm", s.withRequestLog(s.handleChangeNorm))
	mux.HandleFunc("DELETE /api/users/{id}", s.withRequestLog(s.handleDelete))
	mux.HandleFunc("POST /api/users/{id}/deactivate", s.withRequestLog(s.handleDeactivate))

	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		slog.InfoContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
