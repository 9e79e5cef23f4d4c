package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready     bool `json:"ready"`
	Instances int  `json:"instances"`
}

// Readyz is ready once at least one upstream instance is configured.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if d.Dispatcher != nil {
			n = len(d.Dispatcher.Instances())
		}

		status := http.StatusOK
		if n == 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: n > 0, Instances: n})
	}
}
