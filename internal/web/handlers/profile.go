package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/middleware"
)

const maxNameLength = 150

// ProfilePage shows the signed-in user's own account
func (h *Handlers) ProfilePage(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	h.renderProfile(w, r, http.StatusOK, user, user.Name, "")
}

// ProfileUpdate changes the signed-in user's display name
func (h *Handlers) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderProfile(w, r, http.StatusBadRequest, user, user.Name, "Invalid form data")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if utf8.RuneCountInString(name) > maxNameLength {
		h.renderProfile(w, r, http.StatusBadRequest, user, name, "Name is too long")
		return
	}

	if err := h.users.UpdateProfile(user.ID, name); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("profile updated", "email", user.Email)
	h.redirect(w, r, "/profile", flash.Success, "Profile updated")
}

func (h *Handlers) renderProfile(w http.ResponseWriter, r *http.Request, status int, user *models.User, name, message string) {
	h.renderStatus(w, r, status, "profile", "Profile", map[string]any{
		"Account": user,
		"Name":    name,
		"Error":   message,
	})
}
