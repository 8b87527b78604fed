package system

import (
	"net/http"
)

// health handler, it piggy backs on the api port since its publically exposed.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"SERVING"}`))
}
