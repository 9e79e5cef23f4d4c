package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/mw"
)

func init() { Register(registerDownload) }

// Every method is routed to the handler so it can answer 405 in the API's
// error shape. Preflights stop in the CORS middleware before the rate limiter.
func registerDownload(r chi.Router, d deps.Deps) {
	r.With(
		mw.CORS(d.CORSOrigins),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.RateBurst,
			RefillPerIPPerMin: d.RatePerMin,
			MaxEntries:        10000,
			TrustProxy:        d.TrustProxy,
		}),
	).HandleFunc("/api/download", handlers.Download(d))
}
