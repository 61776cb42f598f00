// Package audit defines the API audit record model and the storage contract
// shared by the capture, query and retention packages.
//
// # Architecture
//
// The audit pipeline consists of four layers:
//
//  1. Capture - builds one Record per inbound HTTP exchange (package capture)
//  2. Store - persists records (package store: memory, SQLite, PostgreSQL)
//  3. Query - filtered reads and aggregate statistics (package query)
//  4. Retention - scheduled batched deletion of old records (package retention)
//
// # Recording Flow
//
// Records are persisted asynchronously so a slow or failing store never
// affects the response returned to the client:
//
//	HTTP Request → Handler → Response
//	     ↓
//	capture.Interceptor.Complete
//	     ↓
//	capture.Recorder queue (bounded, drop-oldest)
//	     ↓
//	Store.Insert
//
// # Basic Usage
//
//	st, err := store.NewSQLStore(store.DefaultSQLConfig("apilog.db"))
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	records, err := st.Find(ctx, &audit.Filter{UserID: "u1", Limit: 100})
package audit
