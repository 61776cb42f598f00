package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/query"
	"mercator-hq/apilog/pkg/audit/retention"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is an aligned table (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON using the same field names as the HTTP API.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV with a header row.
	FormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", NewUsageError("unknown output format %q (expected text, json or csv)", s)
	}
}

// Field is one labelled value of a summary.
type Field struct {
	Name  string
	Value string
}

// Formatter renders command output.
type Formatter interface {
	// Records writes a list of audit records.
	Records(w io.Writer, records []*audit.Record) error

	// Summary writes a single object. JSON encodes v; the tabular formats
	// write fields.
	Summary(w io.Writer, v any, fields []Field) error
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}

var recordColumns = []string{
	"id", "timestamp", "method", "endpoint", "status",
	"execution_ms", "user_id", "ip_address", "user_agent", "error",
}

func recordRow(r *audit.Record) []string {
	execution := ""
	if r.ExecutionTimeMillis != nil {
		execution = strconv.FormatInt(*r.ExecutionTimeMillis, 10)
	}
	return []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Method,
		r.Endpoint,
		strconv.Itoa(r.ResponseStatus),
		execution,
		deref(r.UserID),
		deref(r.ClientIP),
		deref(r.UserAgent),
		deref(r.ErrorMessage),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// TextFormatter writes aligned columns.
type TextFormatter struct{}

// Records writes one line per record followed by a count.
func (f *TextFormatter) Records(w io.Writer, records []*audit.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tMETHOD\tENDPOINT\tSTATUS\tTIME\tUSER\tERROR")
	for _, r := range records {
		execution := "-"
		if r.ExecutionTimeMillis != nil {
			execution = fmt.Sprintf("%dms", *r.ExecutionTimeMillis)
		}
		user := deref(r.UserID)
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Method,
			r.Endpoint,
			r.ResponseStatus,
			execution,
			user,
			deref(r.ErrorMessage),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d records\n", len(records))
	return err
}

// Summary writes "name: value" lines.
func (f *TextFormatter) Summary(w io.Writer, _ any, fields []Field) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, field := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", field.Name, field.Value)
	}
	return tw.Flush()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Records writes the records as a JSON array, never null.
func (f *JSONFormatter) Records(w io.Writer, records []*audit.Record) error {
	if records == nil {
		records = []*audit.Record{}
	}
	return f.encode(w, records)
}

// Summary writes v as JSON.
func (f *JSONFormatter) Summary(w io.Writer, v any, _ []Field) error {
	return f.encode(w, v)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// CSVFormatter formats output as CSV.
type CSVFormatter struct{}

// Records writes a header row and one row per record.
func (f *CSVFormatter) Records(w io.Writer, records []*audit.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(recordRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary writes a name,value header followed by the fields.
func (f *CSVFormatter) Summary(w io.Writer, _ any, fields []Field) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "value"}); err != nil {
		return err
	}
	for _, field := range fields {
		if err := cw.Write([]string{field.Name, field.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// QueryStatsFields flattens query statistics for the tabular formats.
func QueryStatsFields(s *query.Stats) []Field {
	avg := "n/a"
	if s.AverageResponseTime != nil {
		avg = strconv.FormatFloat(*s.AverageResponseTime, 'f', 2, 64) + "ms"
	}

	methods := make([]string, 0, len(s.Methods))
	for method, n := range s.Methods {
		methods = append(methods, fmt.Sprintf("%s=%d", method, n))
	}
	sort.Strings(methods)

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	statuses := make([]string, 0, len(codes))
	for _, code := range codes {
		statuses = append(statuses, fmt.Sprintf("%d=%d", code, s.StatusCodes[code]))
	}

	return []Field{
		{"total requests", strconv.Itoa(s.TotalRequests)},
		{"successful requests", strconv.Itoa(s.SuccessfulRequests)},
		{"error requests", strconv.Itoa(s.ErrorRequests)},
		{"average response time", avg},
		{"unique users", strconv.Itoa(s.UniqueUsers)},
		{"unique endpoints", strconv.Itoa(s.UniqueEndpoints)},
		{"methods", strings.Join(methods, " ")},
		{"status codes", strings.Join(statuses, " ")},
	}
}

// CleanupStatsFields flattens a cleanup stats snapshot.
func CleanupStatsFields(s *retention.CleanupStats) []Field {
	fields := []Field{
		{"cleanup enabled", strconv.FormatBool(s.CleanupEnabled)},
		{"retention days", strconv.Itoa(s.RetentionDays)},
		{"cutoff date", s.CutoffDate.UTC().Format(time.RFC3339)},
		{"logs to delete", strconv.FormatInt(s.LogsToDelete, 10)},
		{"batch size", strconv.Itoa(s.BatchSize)},
		{"schedule", s.Schedule},
		{"sweep running", strconv.FormatBool(s.SweepRunning)},
	}
	if s.NextRun != nil {
		fields = append(fields, Field{"next run", s.NextRun.UTC().Format(time.RFC3339)})
	}
	if s.LastSweep != nil {
		fields = append(fields, Field{"last sweep", fmt.Sprintf("%s at %s (%d deleted)",
			s.LastSweep.Outcome, s.LastSweep.StartedAt.UTC().Format(time.RFC3339), s.LastSweep.Deleted)})
	}
	return fields
}

// SweepFields flattens the result of one sweep.
func SweepFields(s *retention.SweepSummary) []Field {
	fields := []Field{
		{"outcome", string(s.Outcome)},
		{"trigger", s.Trigger},
		{"cutoff date", s.Cutoff.UTC().Format(time.RFC3339)},
		{"deleted", strconv.FormatInt(s.Deleted, 10)},
		{"batches", strconv.Itoa(s.Batches)},
		{"duration", (time.Duration(s.DurationMs) * time.Millisecond).String()},
	}
	if s.Error != "" {
		fields = append(fields, Field{"error", s.Error})
	}
	return fields
}
