package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/ytdown/internal/httpserver/deps"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/ytdown/internal/httpserver/mw"
)

func init() { Register(registerInfra) }

func registerInfra(r chi.Router, d deps.Deps) {
	r.Group(func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Get("/infra", handlers.Infra(d))
		r.Post("/infra/cache/flush", handlers.FlushCache(d))
		r.Post("/infra/cache/invalidate", handlers.InvalidateCache(d))
	})
}
