package api

import (
	"net/http"

	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/go-chi/chi/v5"
)

// Handlers groups everything mounted under /api
type Handlers struct {
	Auth      *AuthHandler
	Reports   *ReportHandler
	Users     *UserHandler
	FAQ       *FAQHandler
	WebSocket http.Handler // optional
}

// Mount registers the API routes on r. Login is public; everything else
// needs a token, and apart from the password change a current password.
func Mount(r chi.Router, authn *auth.Authenticator, h Handlers) {
	r.Post("/api/auth/login", h.Auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Post("/api/auth/password", h.Auth.ChangePassword)
		r.Get("/api/auth/me", h.Auth.Me)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePasswordCurrent)

			if h.WebSocket != nil {
				r.Get("/ws", h.WebSocket.ServeHTTP)
			}

			r.Route("/api/months", func(r chi.Router) {
				r.Get("/", h.Reports.Months)
				r.Get("/{month}", h.Reports.Monthly)
				r.Get("/{month}/daily", h.Reports.Daily)
				r.Get("/{month}/evaluations", h.Reports.Evaluations)
			})
			r.Get("/api/history", h.Reports.History)

			r.Get("/api/faq", h.FAQ.Search)
			r.Post("/api/faq", h.FAQ.Ask)

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Get("/api/rankings/{snapshot}", h.Reports.Ranking)
				r.Post("/api/faq/{id}/answer", h.FAQ.Answer)

				r.Route("/api/users", func(r chi.Router) {
					r.Get("/", h.Users.List)
					r.Post("/", h.Users.Create)
					r.Post("/sync", h.Users.Sync)
					r.Delete("/{username}", h.Users.Delete)
					r.Post("/{username}/reset", h.Users.Reset)
				})
			})
		})
	})
}
