package server

import (
	"net/http"
)

// HealthBody is the fixed response of the health route.
const HealthBody = "Bot server running"

// HandleRoot reports that the process is up. It does not depend on messenger
// readiness or on the change feed.
func HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthBody))
}
