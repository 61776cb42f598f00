package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/apilog/pkg/audit"
)

// Supported drivers.
const (
	DriverSQLite3  = "sqlite3"  // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite   = "sqlite"   // modernc.org/sqlite (pure Go)
	DriverPostgres = "postgres" // github.com/lib/pq
)

func init() {
	// sqlx does not know the modernc driver name; it uses ? placeholders.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLConfig contains configuration for the SQL storage backend.
type SQLConfig struct {
	// Driver is one of "sqlite3", "sqlite" or "postgres".
	// Default: "sqlite3"
	Driver string

	// DSN is the data source name. For SQLite drivers it is the file path.
	DSN string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime bounds how long a connection is reused. 0 means forever.
	ConnMaxLifetime time.Duration

	// WALMode enables Write-Ahead Logging on SQLite.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration SQLite waits when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLConfig returns the default SQLite configuration for the given path.
func DefaultSQLConfig(path string) *SQLConfig {
	return &SQLConfig{
		Driver:       DriverSQLite3,
		DSN:          path,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLStore implements audit.Store on top of sqlx. The same queries serve
// SQLite and PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db      *sqlx.DB
	config  *SQLConfig
	backend string
	logger  *slog.Logger
}

// NewSQLStore opens the database and creates the schema if needed.
func NewSQLStore(config *SQLConfig) (*SQLStore, error) {
	if config == nil {
		return nil, audit.NewStorageError("sql", "open", errors.New("config is nil"))
	}
	if config.Driver == "" {
		config.Driver = DriverSQLite3
	}

	backend := "sqlite"
	switch config.Driver {
	case DriverSQLite3, DriverSQLite:
	case DriverPostgres:
		backend = "postgres"
	default:
		return nil, audit.NewStorageError("sql", "open", fmt.Errorf("unsupported driver: %s", config.Driver))
	}

	logger := slog.Default().With("component", "audit.store."+backend)

	db, err := sqlx.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, audit.NewStorageError(backend, "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	s := &SQLStore{
		db:      db,
		config:  config,
		backend: backend,
		logger:  logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit store initialized",
		"driver", config.Driver,
		"wal_mode", config.WALMode && backend == "sqlite",
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

// initialize applies SQLite pragmas and creates the schema.
func (s *SQLStore) initialize() error {
	if s.backend == "sqlite" {
		if s.config.WALMode {
			if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
				return audit.NewStorageError(s.backend, "enable_wal", err)
			}
		}
		if s.config.BusyTimeout > 0 {
			pragma := fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())
			if _, err := s.db.Exec(pragma); err != nil {
				return audit.NewStorageError(s.backend, "set_busy_timeout", err)
			}
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return audit.NewStorageError(s.backend, "create_schema", err)
		}
	}

	if _, err := s.db.Exec(s.db.Rebind(insertSchemaVersion), SchemaVersion, time.Now().UnixNano()); err != nil {
		return audit.NewStorageError(s.backend, "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return audit.NewStorageError(s.backend, "get_schema_version", err)
	}
	if int(version.Int64) != SchemaVersion {
		return audit.NewStorageError(s.backend, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// recordRow is the database representation of an audit.Record.
type recordRow struct {
	ID              string         `db:"id"`
	Endpoint        string         `db:"endpoint"`
	Method          string         `db:"method"`
	UserID          sql.NullString `db:"user_id"`
	RequestBody     sql.NullString `db:"request_body"`
	ResponseStatus  int            `db:"response_status"`
	ResponseBody    sql.NullString `db:"response_body"`
	UserAgent       sql.NullString `db:"user_agent"`
	IPAddress       sql.NullString `db:"ip_address"`
	ExecutionTimeMs sql.NullInt64  `db:"execution_time_ms"`
	TimestampNs     int64          `db:"timestamp_ns"`
	ErrorMessage    sql.NullString `db:"error_message"`
	RequestHeaders  sql.NullString `db:"request_headers"`
	QueryParams     sql.NullString `db:"query_params"`
	PathParams      sql.NullString `db:"path_params"`
}

func toRow(r *audit.Record) (*recordRow, error) {
	row := &recordRow{
		ID:             r.ID,
		Endpoint:       r.Endpoint,
		Method:         r.Method,
		UserID:         nullString(r.UserID),
		RequestBody:    nullString(r.RequestBody),
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   nullString(r.ResponseBody),
		UserAgent:      nullString(r.UserAgent),
		IPAddress:      nullString(r.ClientIP),
		TimestampNs:    unixNanos(r.Timestamp),
		ErrorMessage:   nullString(r.ErrorMessage),
	}
	if r.ExecutionTimeMillis != nil {
		row.ExecutionTimeMs = sql.NullInt64{Int64: *r.ExecutionTimeMillis, Valid: true}
	}

	var err error
	if row.RequestHeaders, err = marshalMap(r.RequestHeaders); err != nil {
		return nil, fmt.Errorf("failed to marshal request headers: %w", err)
	}
	if row.QueryParams, err = marshalMap(r.QueryParams); err != nil {
		return nil, fmt.Errorf("failed to marshal query params: %w", err)
	}
	if row.PathParams, err = marshalMap(r.PathParams); err != nil {
		return nil, fmt.Errorf("failed to marshal path params: %w", err)
	}
	return row, nil
}

func (row *recordRow) toRecord() (*audit.Record, error) {
	r := &audit.Record{
		ID:             row.ID,
		Endpoint:       row.Endpoint,
		Method:         row.Method,
		UserID:         fromNullString(row.UserID),
		RequestBody:    fromNullString(row.RequestBody),
		ResponseStatus: row.ResponseStatus,
		ResponseBody:   fromNullString(row.ResponseBody),
		UserAgent:      fromNullString(row.UserAgent),
		ClientIP:       fromNullString(row.IPAddress),
		Timestamp:      time.Unix(0, row.TimestampNs).UTC(),
		ErrorMessage:   fromNullString(row.ErrorMessage),
	}
	if row.ExecutionTimeMs.Valid {
		v := row.ExecutionTimeMs.Int64
		r.ExecutionTimeMillis = &v
	}

	var err error
	if r.RequestHeaders, err = unmarshalMap(row.RequestHeaders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request headers: %w", err)
	}
	if r.QueryParams, err = unmarshalMap(row.QueryParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal query params: %w", err)
	}
	if r.PathParams, err = unmarshalMap(row.PathParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path params: %w", err)
	}
	return r, nil
}

// Insert persists a record, generating its ID when absent.
func (s *SQLStore) Insert(ctx context.Context, record *audit.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	row, err := toRow(record)
	if err != nil {
		return audit.NewStorageError(s.backend, "insert", err)
	}

	if _, err := s.db.NamedExecContext(ctx, insertRecord, row); err != nil {
		return audit.NewStorageError(s.backend, "insert", err)
	}
	return nil
}

// Find returns matching records ordered by timestamp, then ID.
func (s *SQLStore) Find(ctx context.Context, filter *audit.Filter) ([]*audit.Record, error) {
	where, args := buildWhereClause(filter)
	query := "SELECT " + selectColumns + " FROM api_logs" + where + " ORDER BY timestamp_ns ASC, id ASC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, audit.NewStorageError(s.backend, "find", err)
	}

	records := make([]*audit.Record, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecord()
		if err != nil {
			return nil, audit.NewStorageError(s.backend, "scan", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Count returns the number of matching records.
func (s *SQLStore) Count(ctx context.Context, filter *audit.Filter) (int64, error) {
	where, args := buildWhereClause(filter)
	query := "SELECT COUNT(*) FROM api_logs" + where

	var count int64
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return 0, audit.NewStorageError(s.backend, "count", err)
	}
	return count, nil
}

// DeleteByIDs removes the given records in one transaction. The id list is
// split into statements of at most deleteChunkSize placeholders so that
// large batches stay under the drivers' bind variable limits.
func (s *SQLStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, audit.NewStorageError(s.backend, "delete", err)
	}
	defer tx.Rollback()

	var deleted int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))

		query, args, err := sqlx.In("DELETE FROM api_logs WHERE id IN (?)", ids[start:end])
		if err != nil {
			return 0, audit.NewStorageError(s.backend, "delete", err)
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return 0, audit.NewStorageError(s.backend, "delete", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, audit.NewStorageError(s.backend, "delete", err)
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, audit.NewStorageError(s.backend, "delete", err)
	}

	s.logger.Debug("deleted audit records", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return audit.NewStorageError(s.backend, "ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError(s.backend, "close", err)
	}
	s.logger.Info("audit store closed")
	return nil
}

// deleteChunkSize is below SQLite's default limit of 32766 bind variables.
const deleteChunkSize = 10000

// Bounds of the timestamp_ns column.
var (
	minStoredTime = time.Unix(0, math.MinInt64)
	maxStoredTime = time.Unix(0, math.MaxInt64)
)

// unixNanos converts t for comparison with timestamp_ns, clamping times
// outside the int64 nanosecond range instead of letting them wrap.
func unixNanos(t time.Time) int64 {
	switch {
	case t.Before(minStoredTime):
		return math.MinInt64
	case t.After(maxStoredTime):
		return math.MaxInt64
	default:
		return t.UnixNano()
	}
}

// buildWhereClause builds a WHERE clause with ? placeholders from the filter.
func buildWhereClause(f *audit.Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}

	if f.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Endpoint != "" {
		conditions = append(conditions, "endpoint = ?")
		args = append(args, f.Endpoint)
	}
	if f.Method != "" {
		conditions = append(conditions, "method = ?")
		args = append(args, f.Method)
	}
	if f.Status != nil {
		conditions = append(conditions, "response_status = ?")
		args = append(args, *f.Status)
	}
	if f.MinStatus != nil {
		conditions = append(conditions, "response_status >= ?")
		args = append(args, *f.MinStatus)
	}
	if f.StartTime != nil {
		conditions = append(conditions, "timestamp_ns >= ?")
		args = append(args, unixNanos(*f.StartTime))
	}
	if f.EndTime != nil {
		conditions = append(conditions, "timestamp_ns <= ?")
		args = append(args, unixNanos(*f.EndTime))
	}
	if f.Before != nil {
		conditions = append(conditions, "timestamp_ns < ?")
		args = append(args, unixNanos(*f.Before))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func marshalMap(m map[string]string) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(ns sql.NullString) (map[string]string, error) {
	m := make(map[string]string)
	if !ns.Valid || ns.String == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
