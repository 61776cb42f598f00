package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/query"
	"mercator-hq/apilog/pkg/audit/retention"
	"mercator-hq/apilog/pkg/telemetry/metrics"
)

// Cleanup is the retention surface used by the API. *retention.Scheduler
// implements it.
type Cleanup interface {
	RunNow(ctx context.Context, trigger string) retention.SweepResult
	Stats(ctx context.Context) (*retention.CleanupStats, error)
}

// Handler serves the /logs API.
type Handler struct {
	queries *query.Service
	cleanup Cleanup
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewHandler creates the /logs API handler.
func NewHandler(queries *query.Service, cleanup Cleanup, collector *metrics.Collector) *Handler {
	return &Handler{
		queries: queries,
		cleanup: cleanup,
		metrics: collector,
		logger:  slog.Default().With("component", "api"),
	}
}

// Register mounts the /logs routes on router.
func (h *Handler) Register(router *mux.Router) {
	logs := router.PathPrefix("/logs").Subrouter()
	logs.Use(h.instrument)

	logs.HandleFunc("", h.listLogs).Methods(http.MethodGet)
	logs.HandleFunc("/errors", h.errorLogs).Methods(http.MethodGet)
	logs.HandleFunc("/users/{userId}", h.userLogs).Methods(http.MethodGet)
	logs.HandleFunc("/endpoints/{endpoint:.+}", h.endpointLogs).Methods(http.MethodGet)
	logs.HandleFunc("/methods/{method}", h.methodLogs).Methods(http.MethodGet)
	logs.HandleFunc("/status/{status}", h.statusLogs).Methods(http.MethodGet)
	logs.HandleFunc("/date-range", h.dateRangeLogs).Methods(http.MethodGet)
	logs.HandleFunc("/stats", h.logStats).Methods(http.MethodGet)
	logs.HandleFunc("/cleanup/manual", h.manualCleanup).Methods(http.MethodPost)
	logs.HandleFunc("/cleanup/stats", h.cleanupStats).Methods(http.MethodGet)
}

// Router returns a router serving only the /logs API.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	h.Register(router)
	return router
}

// GET /logs
func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.Request{
		UserID:   q.Get("userId"),
		Endpoint: q.Get("endpoint"),
		Method:   q.Get("method"),
	}

	var err error
	if req.Status, err = optionalInt(q, "status"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Limit, err = optionalInt(q, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.StartDate, err = optionalTime(q, "startDate"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.EndDate, err = optionalTime(q, "endDate"); err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.queries.Find(r.Context(), req)
	h.respond(w, r, records, err)
}

// GET /logs/errors
func (h *Handler) errorLogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.Errors(r.Context(), r.URL.Query().Get("userId"))
	h.respond(w, r, records, err)
}

// GET /logs/users/{userId}
func (h *Handler) userLogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.ByUser(r.Context(), mux.Vars(r)["userId"])
	h.respond(w, r, records, err)
}

// GET /logs/endpoints/{endpoint}
func (h *Handler) endpointLogs(w http.ResponseWriter, r *http.Request) {
	endpoint := mux.Vars(r)["endpoint"]
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	records, err := h.queries.ByEndpoint(r.Context(), endpoint)
	h.respond(w, r, records, err)
}

// GET /logs/methods/{method}
func (h *Handler) methodLogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.ByMethod(r.Context(), mux.Vars(r)["method"])
	h.respond(w, r, records, err)
}

// GET /logs/status/{status}
func (h *Handler) statusLogs(w http.ResponseWriter, r *http.Request) {
	status, err := parseInt("status", mux.Vars(r)["status"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	records, err := h.queries.ByStatus(r.Context(), status)
	h.respond(w, r, records, err)
}

// GET /logs/date-range
func (h *Handler) dateRangeLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := requiredTime(q, "startDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := requiredTime(q, "endDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.queries.FindInRange(r.Context(), start, end, q.Get("method"), q.Get("endpoint"))
	h.respond(w, r, records, err)
}

// GET /logs/stats
func (h *Handler) logStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := optionalTime(q, "startDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := optionalTime(q, "endDate")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.queries.Stats(r.Context(), start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CleanupResponse is the body of POST /logs/cleanup/manual.
type CleanupResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

// POST /logs/cleanup/manual
//
// Always answers 200; the outcome is reported in the body.
func (h *Handler) manualCleanup(w http.ResponseWriter, r *http.Request) {
	result := h.cleanup.RunNow(r.Context(), retention.TriggerManual)

	resp := CleanupResponse{
		Success:      result.Success(),
		Message:      cleanupMessage(result),
		DeletedCount: result.Deleted,
	}
	writeJSON(w, http.StatusOK, resp)
}

func cleanupMessage(result retention.SweepResult) string {
	switch result.Outcome {
	case retention.OutcomeCompleted:
		return "Manual cleanup completed"
	case retention.OutcomeSkippedEmpty:
		return "Manual cleanup completed, no logs older than the retention period"
	case retention.OutcomeSkippedDisabled:
		return "Log cleanup is disabled"
	case retention.OutcomeRejected:
		return "Cleanup already in progress"
	default:
		msg := "Manual cleanup failed"
		if result.Err != nil {
			msg += ": " + result.Err.Error()
		}
		return msg
	}
}

// GET /logs/cleanup/stats
func (h *Handler) cleanupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleanup.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, records []*audit.Record, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// instrument records request metrics labelled with the route template.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.RecordHTTPRequest(route, r.Method, rw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
