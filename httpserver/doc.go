/*
Package httpserver serves the progress of a provisioning run.

The server is optional and only reads the run state; it never influences
the run itself.

# Endpoints

  - GET /livez - Liveness check
  - GET /readyz - 200 once the run has finished (Done, Failed or SkippedAlreadyRun), 503 before
  - GET /status - JSON {"state": ..., "terminal": ..., "uptime": ...}
  - /debug/pprof - Only with pprof enabled

Requests are logged with the flashbots httplogger slog middleware.
*/
package httpserver
