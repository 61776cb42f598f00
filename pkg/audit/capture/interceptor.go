package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/telemetry/metrics"
)

// Submitter accepts completed records for persistence. *Recorder implements it.
type Submitter interface {
	Submit(record *audit.Record) error
}

// Response is the part of the HTTP response that ends up in a record.
type Response struct {
	Status int
	Body   []byte
}

// clientIPHeaders are consulted in order before falling back to the peer
// address.
var clientIPHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_CLIENT_IP",
	"HTTP_X_FORWARDED_FOR",
}

type exchangeKey struct{}

// exchange holds per-request capture state.
type exchange struct {
	mu    sync.Mutex
	start time.Time
	err   error
	body  *bodyReader
}

// SetError attaches err to the record of the request carried by ctx. It
// reports false when the request is not being captured.
func SetError(ctx context.Context, err error) bool {
	ex, ok := ctx.Value(exchangeKey{}).(*exchange)
	if !ok {
		return false
	}
	ex.mu.Lock()
	ex.err = err
	ex.mu.Unlock()
	return true
}

// Interceptor turns HTTP exchanges into audit records.
type Interceptor struct {
	submitter    Submitter
	maxBodyBytes int
	excludePaths []string
	redact       map[string]bool
	enabled      bool
	now          func() time.Time
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewInterceptor creates an interceptor that hands records to submitter.
func NewInterceptor(cfg *config.CaptureConfig, submitter Submitter, collector *metrics.Collector) *Interceptor {
	redact := make(map[string]bool, len(cfg.RedactHeaders))
	for _, h := range cfg.RedactHeaders {
		redact[http.CanonicalHeaderKey(h)] = true
	}
	return &Interceptor{
		submitter:    submitter,
		maxBodyBytes: cfg.MaxBodyBytes,
		excludePaths: cfg.ExcludePaths,
		redact:       redact,
		enabled:      cfg.Enabled,
		now:          time.Now,
		metrics:      collector,
		logger:       slog.Default().With("component", "audit.capture"),
	}
}

// Begin marks the start of an exchange and returns the request carrying the
// capture state.
func (i *Interceptor) Begin(r *http.Request) *http.Request {
	ex := &exchange{start: i.now()}
	return r.WithContext(context.WithValue(r.Context(), exchangeKey{}, ex))
}

// Complete builds the record for a finished exchange and submits it. An error
// set with SetError is used when err is nil. Failures are logged and never
// propagate to the caller.
func (i *Interceptor) Complete(r *http.Request, resp Response, err error) {
	record, buildErr := i.build(r, resp, err)
	if buildErr != nil {
		i.metrics.RecordCaptureFailure()
		i.logger.Error("failed to build audit record",
			"error", &audit.CaptureError{Stage: "build", Endpoint: r.URL.Path, Cause: buildErr},
		)
		return
	}

	if err := i.submitter.Submit(record); err != nil {
		i.metrics.RecordCaptureFailure()
		i.logger.Warn("failed to submit audit record",
			"endpoint", record.Endpoint,
			"method", record.Method,
			"error", err,
		)
	}
}

// Middleware captures every request that is not excluded.
//
// A panicking handler is recorded with status 500 and the panic message, then
// the panic continues to the outer recovery middleware.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.enabled || i.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		r = i.Begin(r)
		if r.Body != nil && r.Body != http.NoBody {
			body := newBodyReader(r.Body, i.maxBodyBytes)
			exchangeFrom(r.Context()).body = body
			r.Body = body
		}
		rw := newResponseWriter(w, i.maxBodyBytes)

		defer func() {
			if p := recover(); p != nil {
				resp := rw.Response()
				if !rw.wroteHeader {
					resp.Status = http.StatusInternalServerError
				}
				i.Complete(r, resp, fmt.Errorf("panic: %v", p))
				panic(p)
			}
		}()

		next.ServeHTTP(rw, r)

		if ex := exchangeFrom(r.Context()); ex != nil && ex.body != nil {
			ex.body.finish()
		}
		i.Complete(r, rw.Response(), nil)
	})
}

func (i *Interceptor) excluded(path string) bool {
	for _, prefix := range i.excludePaths {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

// build extracts the record fields from the exchange.
func (i *Interceptor) build(r *http.Request, resp Response, err error) (record *audit.Record, buildErr error) {
	defer func() {
		if p := recover(); p != nil {
			record = nil
			buildErr = fmt.Errorf("panic while building record: %v", p)
		}
	}()

	now := i.now()
	record = &audit.Record{
		Endpoint:       r.URL.Path,
		Method:         r.Method,
		UserID:         userID(r),
		ResponseStatus: resp.Status,
		UserAgent:      audit.StringPtr(r.UserAgent()),
		ClientIP:       audit.StringPtr(clientIP(r)),
		Timestamp:      now,
		RequestHeaders: i.headers(r.Header),
		QueryParams:    parseQuery(r.URL.RawQuery),
		PathParams:     map[string]string{},
	}

	if len(resp.Body) > 0 {
		body := string(truncate(resp.Body, i.maxBodyBytes))
		record.ResponseBody = &body
	}

	if ex := exchangeFrom(r.Context()); ex != nil {
		ex.mu.Lock()
		elapsed := now.Sub(ex.start).Milliseconds()
		if err == nil {
			err = ex.err
		}
		record.RequestBody = ex.body.snapshot()
		ex.mu.Unlock()
		record.ExecutionTimeMillis = &elapsed
	}

	if err != nil {
		record.ErrorMessage = audit.StringPtr(err.Error())
	}
	return record, nil
}

// headers flattens request headers, keeping the last value of repeated
// headers and masking the configured sensitive ones.
func (i *Interceptor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]
		if i.redact[http.CanonicalHeaderKey(name)] {
			value = RedactTruncated(value)
		}
		out[name] = value
	}
	return out
}

func userID(r *http.Request) *string {
	if v := r.Header.Get("userId"); v != "" {
		return &v
	}
	return audit.StringPtr(r.Header.Get("X-User-ID"))
}

// clientIP returns the first usable forwarding header value, else the peer
// host. For comma-separated lists the first entry is the originating client.
func clientIP(r *http.Request) string {
	for _, name := range clientIPHeaders {
		v := strings.TrimSpace(r.Header.Get(name))
		if v == "" || strings.EqualFold(v, "unknown") {
			continue
		}
		if idx := strings.IndexByte(v, ','); idx >= 0 {
			v = strings.TrimSpace(v[:idx])
		}
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseQuery splits a raw query string into key/value pairs without decoding.
// Pairs that do not contain exactly one "=" are skipped.
func parseQuery(raw string) map[string]string {
	params := make(map[string]string)
	if raw == "" {
		return params
	}
	for _, pair := range strings.Split(raw, "&") {
		kv := strings.Split(pair, "=")
		if len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}
	return params
}
