// Package logx wraps zerolog behind a small structured-logging API.
//
// Components receive a Logger value and log through Field closures
// (logx.String, logx.Err, ...). The Service owns the sinks (console,
// optional JSON file) and can re-apply configuration at runtime without
// invalidating Logger values already handed out.
package logx
