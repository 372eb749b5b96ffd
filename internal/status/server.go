package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"branchwatch/internal/branch"
	"branchwatch/internal/notifier"
	"branchwatch/internal/pipeline"
	"branchwatch/internal/storage"
	"branchwatch/internal/task/scheduler"
	"branchwatch/pkg/logx"
)

const (
	defaultChangesLimit = 20
	maxChangesLimit     = 500
	shutdownTimeout     = 5 * time.Second
)

type Config struct {
	Enabled bool
	Addr    string
	Pprof   bool
}

// Store is the read side of storage the server exposes.
type Store interface {
	ListBranches(ctx context.Context) (map[string]branch.State, error)
	RecentChanges(ctx context.Context, limit int) ([]storage.ChangeRecord, error)
}

// Passes runs and reports pipeline passes. Trigger joins a pass already in
// flight instead of starting a second one; shared reports that.
type Passes interface {
	Trigger(ctx context.Context) (rep pipeline.Report, shared bool, err error)
	LastReport() (pipeline.Report, bool)
	Running() bool
}

type Notifications interface {
	Pending() int
	Snapshot() []notifier.HistoryItem
}

type Schedules interface {
	Entries() []scheduler.Entry
}

type Deps struct {
	Store         Store
	Passes        Passes
	Notifications Notifications
	Schedules     Schedules
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	started time.Time
	now     func() time.Time

	mu sync.Mutex
	ln net.Listener
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, deps: deps, log: log.With(logx.String("comp", "status")), now: time.Now}
	s.started = s.now()
	return s
}

// Handler builds the router. Exposed for tests and for embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/branches", s.handleBranches)
	r.Get("/changes", s.handleChanges)
	r.Get("/status", s.handleStatus)
	r.Post("/poll", s.handlePoll)

	if s.cfg.Pprof {
		r.HandleFunc("/debug/pprof/", hpprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", hpprof.Trace)
		r.Handle("/debug/pprof/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hpprof.Handler(chi.URLParam(r, "name")).ServeHTTP(w, r)
		}))
	}
	return r
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// A disabled server returns immediately.
func (s *Server) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		return errors.New("status: empty listen address")
	}
	if !isLoopbackAddr(addr) {
		s.log.Warn("status server bound to non-loopback addr; it has no authentication", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	<-errCh
	s.log.Info("status server stopped")
	return nil
}

// Addr is the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

type branchView struct {
	Name        string `json:"name"`
	BuildID     string `json:"build_id"`
	LastUpdated int64  `json:"last_updated"`
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	all, err := s.deps.Store.ListBranches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]branchView, 0, len(all))
	for name, st := range all {
		out = append(out, branchView{Name: name, BuildID: st.BuildID, LastUpdated: st.LastUpdated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	limit := defaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxChangesLimit)
	}
	recs, err := s.deps.Store.RecentChanges(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []storage.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type statusView struct {
	Started    time.Time              `json:"started"`
	Uptime     string                 `json:"uptime"`
	Running    bool                   `json:"running"`
	LastReport *pipeline.Report       `json:"last_report,omitempty"`
	Pending    int                    `json:"pending"`
	History    []notifier.HistoryItem `json:"history"`
	Schedules  []scheduler.Entry      `json:"schedules"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	v := statusView{
		Started:   s.started,
		Uptime:    s.now().Sub(s.started).Truncate(time.Second).String(),
		History:   []notifier.HistoryItem{},
		Schedules: []scheduler.Entry{},
	}
	if p := s.deps.Passes; p != nil {
		v.Running = p.Running()
		if rep, ok := p.LastReport(); ok {
			v.LastReport = &rep
		}
	}
	if n := s.deps.Notifications; n != nil {
		v.Pending = n.Pending()
		if h := n.Snapshot(); h != nil {
			v.History = h
		}
	}
	if sc := s.deps.Schedules; sc != nil {
		if e := sc.Entries(); e != nil {
			v.Schedules = e
		}
	}
	writeJSON(w, http.StatusOK, v)
}

type pollView struct {
	Shared bool            `json:"shared"`
	Report pipeline.Report `json:"report"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.deps.Passes == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}
	rep, shared, err := s.deps.Passes.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pollView{Shared: shared, Report: rep})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
