package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/listmail/internal/web/middleware"
)

// RegisterRoutes mounts the public auth pages and, behind requireAuth, the
// application pages and JSON API
func (h *Handlers) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)
		r.Get("/logout", h.Logout)
		r.Get("/register", h.RegisterPage)
		r.Post("/register", h.Register)
		r.Get("/oidc/login", h.OIDCLogin)
		r.Get("/callback", h.OIDCCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", h.Dashboard)
		r.Get("/profile", h.ProfilePage)
		r.Put("/profile", h.ProfileUpdate)

		r.Route("/recipients", func(r chi.Router) {
			r.Get("/", h.RecipientList)
			r.Get("/new", h.RecipientNew)
			r.Post("/", h.RecipientCreate)
			r.Get("/{id}", h.RecipientView)
			r.Get("/{id}/edit", h.RecipientEdit)
			r.Put("/{id}", h.RecipientUpdate)
			r.Delete("/{id}", h.RecipientDelete)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.MessageList)
			r.Get("/new", h.MessageNew)
			r.Post("/", h.MessageCreate)
			r.Get("/{id}", h.MessageView)
			r.Get("/{id}/edit", h.MessageEdit)
			r.Put("/{id}", h.MessageUpdate)
			r.Delete("/{id}", h.MessageDelete)
		})

		r.Route("/mailings", func(r chi.Router) {
			r.Get("/", h.MailingList)
			r.Get("/new", h.MailingNew)
			r.Post("/", h.MailingCreate)
			r.Get("/{id}", h.MailingView)
			r.Get("/{id}/edit", h.MailingEdit)
			r.Put("/{id}", h.MailingUpdate)
			r.Delete("/{id}", h.MailingDelete)
			r.Post("/{id}/send", h.MailingSend)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireUserManagement)
			r.Get("/", h.UserList)
			r.Post("/{id}/block", h.UserBlock)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/mailings/{id}/dispatch", h.APIDispatch)
			r.Get("/stats", h.APIStats)
		})
	})
}
