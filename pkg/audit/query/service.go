package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/telemetry/tracing"
)

// Branch names the store query chosen for a Request.
type Branch string

// Query branches in precedence order.
const (
	BranchUserRange Branch = "user_range"
	BranchRange     Branch = "range"
	BranchUser      Branch = "user"
	BranchEndpoint  Branch = "endpoint"
	BranchMethod    Branch = "method"
	BranchStatus    Branch = "status"
	BranchAll       Branch = "all"
)

// Request holds the optional criteria of a combined log query.
//
// Only one criterion is applied, chosen by Resolve. The date window is used
// only when both StartDate and EndDate are set.
type Request struct {
	UserID    string
	Endpoint  string
	Method    string
	Status    *int
	StartDate *time.Time
	EndDate   *time.Time

	// Limit caps the result size. nil selects the default limit.
	Limit *int
}

// Service answers read-only questions about audit records.
type Service struct {
	store        audit.Store
	defaultLimit int
	maxLimit     int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewService creates a query service over store.
func NewService(store audit.Store, cfg *config.QueryConfig) *Service {
	s := &Service{
		store:        store,
		defaultLimit: config.DefaultQueryDefaultLimit,
		maxLimit:     config.DefaultQueryMaxLimit,
		timeout:      config.DefaultQueryTimeout,
		logger:       slog.Default().With("component", "audit.query"),
	}
	if cfg != nil {
		if cfg.DefaultLimit > 0 {
			s.defaultLimit = cfg.DefaultLimit
		}
		if cfg.MaxLimit > 0 {
			s.maxLimit = cfg.MaxLimit
		}
		if cfg.Timeout > 0 {
			s.timeout = cfg.Timeout
		}
	}
	return s
}

// Validate checks a request without running it.
func (s *Service) Validate(req Request) error {
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return audit.ValidationError("startDate %s is after endDate %s",
			req.StartDate.Format(time.RFC3339), req.EndDate.Format(time.RFC3339))
	}
	if req.Limit != nil && *req.Limit < 0 {
		return audit.ValidationError("limit must not be negative, got %d", *req.Limit)
	}
	return nil
}

// Resolve picks the single store query a request maps to. The first matching
// rule wins:
//
//  1. userId with both dates
//  2. both dates
//  3. userId
//  4. endpoint
//  5. method
//  6. status
//  7. everything
func (s *Service) Resolve(req Request) (Branch, *audit.Filter, error) {
	if err := s.Validate(req); err != nil {
		return "", nil, err
	}

	hasRange := req.StartDate != nil && req.EndDate != nil
	filter := &audit.Filter{Limit: s.limit(req.Limit)}

	switch {
	case req.UserID != "" && hasRange:
		filter.UserID = req.UserID
		filter.StartTime, filter.EndTime = req.StartDate, req.EndDate
		return BranchUserRange, filter, nil
	case hasRange:
		filter.StartTime, filter.EndTime = req.StartDate, req.EndDate
		return BranchRange, filter, nil
	case req.UserID != "":
		filter.UserID = req.UserID
		return BranchUser, filter, nil
	case req.Endpoint != "":
		filter.Endpoint = req.Endpoint
		return BranchEndpoint, filter, nil
	case req.Method != "":
		filter.Method = req.Method
		return BranchMethod, filter, nil
	case req.Status != nil:
		filter.Status = req.Status
		return BranchStatus, filter, nil
	default:
		return BranchAll, filter, nil
	}
}

func (s *Service) limit(requested *int) int {
	n := s.defaultLimit
	if requested != nil {
		n = *requested
	}
	if n > s.maxLimit {
		return s.maxLimit
	}
	return n
}

// Find runs the combined query. The result holds at most Limit records, the
// oldest first.
func (s *Service) Find(ctx context.Context, req Request) ([]*audit.Record, error) {
	branch, filter, err := s.Resolve(req)
	if err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		return []*audit.Record{}, nil
	}

	ctx, span := tracing.Start(ctx, "query.find", attribute.String("query.branch", string(branch)))
	defer span.End()

	records, err := s.find(ctx, "find", filter)
	tracing.SetStatus(span, err)
	return records, err
}

// FindInRange returns records inside the inclusive window. A non-empty method
// (case-insensitive) takes precedence over endpoint (case-insensitive
// substring).
func (s *Service) FindInRange(ctx context.Context, start, end time.Time, method, endpoint string) ([]*audit.Record, error) {
	if err := s.Validate(Request{StartDate: &start, EndDate: &end}); err != nil {
		return nil, err
	}

	records, err := s.find(ctx, "find_in_range", &audit.Filter{StartTime: &start, EndTime: &end})
	if err != nil {
		return nil, err
	}

	var match func(*audit.Record) bool
	switch {
	case method != "":
		match = func(r *audit.Record) bool { return strings.EqualFold(r.Method, method) }
	case endpoint != "":
		needle := strings.ToLower(endpoint)
		match = func(r *audit.Record) bool { return strings.Contains(strings.ToLower(r.Endpoint), needle) }
	default:
		return records, nil
	}

	filtered := make([]*audit.Record, 0, len(records))
	for _, r := range records {
		if match(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Errors returns records with a status of 400 or above, optionally for one
// user.
func (s *Service) Errors(ctx context.Context, userID string) ([]*audit.Record, error) {
	return s.find(ctx, "errors", &audit.Filter{UserID: userID, MinStatus: audit.IntPtr(400)})
}

// ByUser returns every record of a user.
func (s *Service) ByUser(ctx context.Context, userID string) ([]*audit.Record, error) {
	return s.find(ctx, "by_user", &audit.Filter{UserID: userID})
}

// ByEndpoint returns every record for an exact endpoint path.
func (s *Service) ByEndpoint(ctx context.Context, endpoint string) ([]*audit.Record, error) {
	return s.find(ctx, "by_endpoint", &audit.Filter{Endpoint: endpoint})
}

// ByMethod returns every record with the given HTTP method.
func (s *Service) ByMethod(ctx context.Context, method string) ([]*audit.Record, error) {
	return s.find(ctx, "by_method", &audit.Filter{Method: method})
}

// ByStatus returns every record with the given response status.
func (s *Service) ByStatus(ctx context.Context, status int) ([]*audit.Record, error) {
	return s.find(ctx, "by_status", &audit.Filter{Status: &status})
}

// Stats summarizes the records inside the window, or all records when the
// window is not fully specified.
func (s *Service) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	if err := s.Validate(Request{StartDate: start, EndDate: end}); err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "query.stats")
	defer span.End()

	filter := &audit.Filter{}
	if start != nil && end != nil {
		filter.StartTime, filter.EndTime = start, end
	}
	records, err := s.find(ctx, "stats", filter)
	tracing.SetStatus(span, err)
	if err != nil {
		return nil, err
	}
	return ComputeStats(records), nil
}

func (s *Service) find(ctx context.Context, operation string, filter *audit.Filter) ([]*audit.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	records, err := s.store.Find(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit query failed",
			"operation", operation,
			"error", err,
		)
		return nil, audit.NewQueryError(operation, err)
	}
	if records == nil {
		records = []*audit.Record{}
	}

	s.logger.DebugContext(ctx, "audit query completed",
		"operation", operation,
		"results", len(records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}
