package audit

import (
	"context"
	"time"
)

// Record is a single captured API request/response exchange.
//
// Optional fields are pointers so that "absent" survives storage and JSON
// serialization. Records are immutable once inserted.
type Record struct {
	// ID is assigned by the store on Insert.
	ID string `json:"id" db:"id"`

	Endpoint string `json:"endpoint" db:"endpoint"`
	Method   string `json:"method" db:"method"`

	// UserID is taken from the userId or X-User-ID request header.
	UserID *string `json:"userId,omitempty" db:"user_id"`

	RequestBody    *string `json:"requestBody,omitempty" db:"request_body"`
	ResponseStatus int     `json:"responseStatus" db:"response_status"`
	ResponseBody   *string `json:"responseBody,omitempty" db:"response_body"`

	UserAgent *string `json:"userAgent,omitempty" db:"user_agent"`
	ClientIP  *string `json:"ipAddress,omitempty" db:"ip_address"`

	// ExecutionTimeMillis is absent when the start time was never recorded.
	ExecutionTimeMillis *int64 `json:"executionTime,omitempty" db:"execution_time_ms"`

	// Timestamp is the capture completion time.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	ErrorMessage *string `json:"errorMessage,omitempty" db:"error_message"`

	RequestHeaders map[string]string `json:"requestHeaders"`
	QueryParams    map[string]string `json:"queryParams"`
	PathParams     map[string]string `json:"pathParams"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.UserID = cloneString(r.UserID)
	c.RequestBody = cloneString(r.RequestBody)
	c.ResponseBody = cloneString(r.ResponseBody)
	c.UserAgent = cloneString(r.UserAgent)
	c.ClientIP = cloneString(r.ClientIP)
	c.ErrorMessage = cloneString(r.ErrorMessage)
	if r.ExecutionTimeMillis != nil {
		v := *r.ExecutionTimeMillis
		c.ExecutionTimeMillis = &v
	}
	c.RequestHeaders = cloneMap(r.RequestHeaders)
	c.QueryParams = cloneMap(r.QueryParams)
	c.PathParams = cloneMap(r.PathParams)
	return &c
}

// IsError reports whether the record describes a client or server error.
func (r *Record) IsError() bool {
	return r.ResponseStatus >= 400
}

// Filter selects records from a Store. Zero-valued fields are ignored; all
// set fields are combined with AND.
type Filter struct {
	UserID   string
	Endpoint string
	Method   string

	// Status matches the response status exactly.
	Status *int

	// MinStatus matches response statuses greater than or equal to it.
	MinStatus *int

	// StartTime and EndTime form an inclusive timestamp window.
	StartTime *time.Time
	EndTime   *time.Time

	// Before matches timestamps strictly earlier than it.
	Before *time.Time

	// Limit caps the number of returned records. 0 means unlimited.
	Limit int
}

// Store persists audit records.
//
// Find returns records ordered by timestamp ascending, then ID ascending.
// DeleteByIDs removes the given set in one atomic operation and reports the
// number of rows actually removed. Implementations must be safe for
// concurrent use.
type Store interface {
	Insert(ctx context.Context, record *Record) error
	Find(ctx context.Context, filter *Filter) ([]*Record, error)
	Count(ctx context.Context, filter *Filter) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Matches reports whether the record satisfies every set field of the filter.
// Limit is not considered.
func (f *Filter) Matches(r *Record) bool {
	if f == nil {
		return true
	}
	if f.UserID != "" && (r.UserID == nil || *r.UserID != f.UserID) {
		return false
	}
	if f.Endpoint != "" && r.Endpoint != f.Endpoint {
		return false
	}
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	if f.Status != nil && r.ResponseStatus != *f.Status {
		return false
	}
	if f.MinStatus != nil && r.ResponseStatus < *f.MinStatus {
		return false
	}
	if f.StartTime != nil && r.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && r.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.Before != nil && !r.Timestamp.Before(*f.Before) {
		return false
	}
	return true
}

// StringPtr returns a pointer to s, or nil if s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
