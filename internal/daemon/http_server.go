package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/metrics"
	"git.home.luguber.info/inful/contentloader/internal/observability"
	"git.home.luguber.info/inful/contentloader/internal/repository"
)

// HTTPServer serves the status API and metrics.
type HTTPServer struct {
	addr   string
	server *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// NewHTTPServer creates a server for handler on addr.
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Listen binds the address so bind errors surface before serving starts.
func (s *HTTPServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to bind HTTP listener").
			WithContext("addr", s.addr).Build()
	}
	s.ln = ln
	s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *HTTPServer) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Serve blocks until Shutdown.
func (s *HTTPServer) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if err := s.server.Serve(s.ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapError(err, errors.CategoryNetwork, "HTTP server failed").Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP routes of the daemon.
func (d *Daemon) Handler() http.Handler {
	h := &apiHandlers{d: d, errs: errors.NewHTTPErrorAdapter(d.logger)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/records", h.records)
	mux.HandleFunc("GET /api/records/{unit}", h.record)
	mux.HandleFunc("GET /api/deferred", h.deferred)
	mux.HandleFunc("POST /api/deferred/retry", h.retry)
	mux.HandleFunc("GET /api/history", h.history)
	mux.HandleFunc("GET /api/history/{unit}", h.unitHistory)
	mux.Handle("GET /metrics", metrics.HTTPHandler(d.registry))
	return withRequestID(mux)
}

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

// withRequestID tags each request context with the caller's request id or a
// fresh one and echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}

type apiHandlers struct {
	d    *Daemon
	errs *errors.HTTPErrorAdapter
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Status     Status `json:"status"`
	InstanceID string `json:"instance_id"`
	Version    string `json:"version"`
	RootPath   string `json:"root_path"`
	Units      int    `json:"units"`
	Deferred   int    `json:"deferred"`
	Uptime     string `json:"uptime"`
}

// DeferredResponse is the body of /api/deferred.
type DeferredResponse struct {
	Deferred       []string `json:"deferred"`
	PendingUpdates []string `json:"pending_updates"`
}

func (h *apiHandlers) health(w http.ResponseWriter, r *http.Request) {
	resp := h.d.PerformHealthChecks(r.Context())
	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *apiHandlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.d.StatusSnapshot())
}

func (h *apiHandlers) records(w http.ResponseWriter, r *http.Request) {
	err := h.d.withSession(r.Context(), func(s repository.Session) error {
		recs, err := h.d.store.Records(r.Context(), s)
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []*loader.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
		return nil
	})
	if err != nil {
		h.errs.WriteErrorResponse(w, r, err)
	}
}

func (h *apiHandlers) record(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("unit")
	err := h.d.withSession(r.Context(), func(s repository.Session) error {
		rec, err := h.d.store.Lookup(r.Context(), s, name)
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.NotFoundError("no record for unit").WithContext("unit", name).Build()
		}
		writeJSON(w, http.StatusOK, rec)
		return nil
	})
	if err != nil {
		h.errs.WriteErrorResponse(w, r, err)
	}
}

func (h *apiHandlers) deferred(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DeferredResponse{
		Deferred:       h.d.listener.Engine().Deferred(),
		PendingUpdates: h.d.listener.PendingUpdates(),
	})
}

func (h *apiHandlers) retry(w http.ResponseWriter, r *http.Request) {
	h.d.listener.RetryDeferred(r.Context())
	h.deferred(w, r)
}

func (h *apiHandlers) history(w http.ResponseWriter, r *http.Request) {
	if h.d.history == nil {
		h.errs.WriteErrorResponse(w, r, errAuditDisabled)
		return
	}
	writeJSON(w, http.StatusOK, h.d.history.GetHistory())
}

func (h *apiHandlers) unitHistory(w http.ResponseWriter, r *http.Request) {
	if h.d.history == nil {
		h.errs.WriteErrorResponse(w, r, errAuditDisabled)
		return
	}
	name := r.PathValue("unit")
	sum, ok := h.d.history.GetUnit(name)
	if !ok {
		h.errs.WriteErrorResponse(w, r, errors.NotFoundError("no history for unit").WithContext("unit", name).Build())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

var errAuditDisabled = errors.NotFoundError("audit log is disabled").Build()

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", logfields.Error(err))
	}
}

// withSession runs fn in a fresh repository session.
func (d *Daemon) withSession(ctx context.Context, fn func(repository.Session) error) error {
	s, err := d.repo.Login(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Logout(); err != nil {
			d.logger.Warn("Failed to close repository session", logfields.SessionID(s.ID()), logfields.Error(err))
		}
	}()
	return fn(s)
}
