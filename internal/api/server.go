// Package api serves the operator status API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/h1v3-io/intake/internal/conversation"
	"github.com/h1v3-io/intake/internal/ledger"
	"github.com/h1v3-io/intake/internal/logbuf"
	"github.com/h1v3-io/intake/internal/scheduler"
	"github.com/h1v3-io/intake/pkg/protocol"
)

// ErrLedgerDisabled is returned by IntakeService.Filings when no ledger is configured.
var ErrLedgerDisabled = errors.New("ledger disabled")

// LogQuerier abstracts log entry querying.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// Stats is the daemon's current state for GET /api/stats.
type Stats struct {
	Date              string                 `json:"date"`
	Filed             []protocol.FiledTicket `json:"filed_today"`
	OpenConversations int                    `json:"open_conversations"`
	FailedFilings     int                    `json:"failed_filings"`
	StartedAt         time.Time              `json:"started_at"`
	Uptime            string                 `json:"uptime"`
	Jobs              []scheduler.JobInfo    `json:"jobs"`
}

// IntakeService is the interface the API server needs from the daemon.
type IntakeService interface {
	Conversations() []conversation.Summary
	Conversation(key string) (conversation.State, bool)
	Stats() Stats
	Filings(filter ledger.Filter) ([]*ledger.Filing, error)
	RunDigest(ctx context.Context) error
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the operator REST API server.
type Server struct {
	svc    IntakeService
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	srv    *http.Server
	now    func() time.Time
}

// NewServer creates a new API server. logs may be nil.
func NewServer(svc IntakeService, cfg Config, logger *slog.Logger, logs LogQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		now:    time.Now,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/conversations", s.requireAuth(s.handleListConversations))
	mux.HandleFunc("GET /api/conversations/{key}", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("GET /api/filings", s.requireAuth(s.handleListFilings))
	mux.HandleFunc("POST /api/digest", s.requireAuth(s.handleRunDigest))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.svc.Stats()
	if st.Filed == nil {
		st.Filed = []protocol.FiledTicket{}
	}
	if !st.StartedAt.IsZero() {
		st.Uptime = strings.TrimSpace(humanize.RelTime(st.StartedAt, s.now(), "", ""))
	}
	writeJSON(w, http.StatusOK, st)
}

type conversationView struct {
	conversation.Summary
	LastActive string `json:"last_active"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	summaries := s.svc.Conversations()
	out := make([]conversationView, len(summaries))
	for i, sum := range summaries {
		out[i] = conversationView{Summary: sum, LastActive: humanize.RelTime(sum.UpdatedAt, now, "ago", "from now")}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	st, ok := s.svc.Conversation(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.Filter{UserID: q.Get("user"), Limit: 50}
	if status := q.Get("status"); status != "" {
		st := ledger.Status(status)
		if st != ledger.StatusFiled && st != ledger.StatusFailed {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be filed or failed"})
			return
		}
		filter.Status = &st
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		filter.Since = t
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	filings, err := s.svc.Filings(filter)
	if errors.Is(err, ErrLedgerDisabled) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if filings == nil {
		filings = []*ledger.Filing{}
	}
	writeJSON(w, http.StatusOK, filings)
}

func (s *Server) handleRunDigest(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("digest triggered via api")
	if err := s.svc.RunDigest(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "posted"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	f := logbuf.Filter{Limit: 200, MinLevel: slog.LevelDebug}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	if ms := q.Get("since"); ms != "" {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
			f.Since = time.UnixMilli(n)
		}
	}
	if key := q.Get("conversation"); key != "" {
		f.Attrs = map[string]string{"conversation": key}
	}

	entries := s.logs.Query(f)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
