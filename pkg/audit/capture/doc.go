// Package capture records every HTTP exchange that passes through the
// server as an audit.Record.
//
// The Interceptor snapshots the request and response, and a Recorder
// persists the records on background workers. Capture problems are logged
// and counted; they never change the response the client receives.
//
//	recorder := capture.NewRecorder(store, capture.RecorderConfigFrom(&cfg.Capture), collector)
//	defer recorder.Close()
//
//	interceptor := capture.NewInterceptor(&cfg.Capture, recorder, collector)
//	handler = interceptor.Middleware(handler)
package capture
