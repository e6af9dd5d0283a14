// Package httphandler exposes webhook intake and the operator API over HTTP.
//
// Routes:
//
//	POST   /v1/webhooks/pricing      provider callback, X-Hub-Signature required
//	POST   /v1/sync                  admin, runs a catalog sync
//	GET    /v1/sync/status           admin, last successful sync
//	DELETE /v1/logs?from=&to=        admin, purges sync logs (RFC 3339 bounds)
//	DELETE /v1/users/{userID}/data   the user or admin, resets per-user data
//	GET    /healthz
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	const op = "httphandler.writeJSON"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response body", "op", op, "err", err)
	}
}

// writeError answers with a short message. Error detail stays in the logs.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func RegisterHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})
}
