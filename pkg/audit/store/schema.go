package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// schemaStatements create the audit schema. They are portable between
// SQLite and PostgreSQL and are executed one at a time because not every
// driver accepts multi-statement Exec. Timestamps are stored as Unix
// nanoseconds so ordering and range comparisons behave the same on both.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS api_logs (
    id TEXT PRIMARY KEY,
    endpoint TEXT NOT NULL,
    method TEXT NOT NULL,
    user_id TEXT,
    request_body TEXT,
    response_status INTEGER NOT NULL,
    response_body TEXT,
    user_agent TEXT,
    ip_address TEXT,
    execution_time_ms BIGINT,
    timestamp_ns BIGINT NOT NULL,
    error_message TEXT,
    request_headers TEXT,
    query_params TEXT,
    path_params TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_timestamp ON api_logs(timestamp_ns, id)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_user_id ON api_logs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_endpoint ON api_logs(endpoint)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_method ON api_logs(method)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_status ON api_logs(response_status)`,
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`,
}

// insertSchemaVersion records the schema version if not already present.
const insertSchemaVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`

// getSchemaVersion retrieves the current schema version.
const getSchemaVersion = `SELECT MAX(version) FROM schema_version`

const insertRecord = `INSERT INTO api_logs (
    id, endpoint, method, user_id, request_body, response_status, response_body,
    user_agent, ip_address, execution_time_ms, timestamp_ns, error_message,
    request_headers, query_params, path_params
) VALUES (
    :id, :endpoint, :method, :user_id, :request_body, :response_status, :response_body,
    :user_agent, :ip_address, :execution_time_ms, :timestamp_ns, :error_message,
    :request_headers, :query_params, :path_params
)`

const selectColumns = `id, endpoint, method, user_id, request_body, response_status, response_body,
    user_agent, ip_address, execution_time_ms, timestamp_ns, error_message,
    request_headers, query_params, path_params`
