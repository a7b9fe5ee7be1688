/*
Package httpserver exposes a ceremony coordinator to participants over HTTP.

Handler maps each request to one coordinator operation and renders the result with the
types from package api. Errors are returned as api.ErrorResponse with a status derived
from the ceremony error:

  - 409 for protocol violations (full, already running, not running, out of turn,
    not your turn, already registered)
  - 400 for malformed input and 413 for oversized artifacts
  - 404 for transcripts that do not exist
  - 503 once the coordinator stopped or when the transcript store is unavailable
  - 500 for anything else

Server wires the handler into a chi router with request logging, health endpoints
(/livez, /readyz, /drain, /undrain) and optional pprof, and runs the metrics server
alongside it.

Usage:

	handler := httpserver.NewHandler(coordinator, 0, logger)
	srv, err := httpserver.New(cfg, handler, metricsSrv)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
