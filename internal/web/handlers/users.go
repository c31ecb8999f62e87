package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/web/flash"
)

type userRow struct {
	User     models.User
	CanBlock bool
}

// UserList shows all accounts to users who manage them
func (h *Handlers) UserList(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	users, _, err := h.users.List(models.UserFilter{Search: search})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	rows := make([]userRow, 0, len(users))
	for i := range users {
		rows = append(rows, userRow{User: users[i], CanBlock: d.CanBlock(&users[i])})
	}

	h.render(w, r, "users", "Users", map[string]any{
		"Users":  rows,
		"Search": search,
	})
}

// UserBlock blocks or unblocks an account. Blocking signs the user out
// everywhere.
func (h *Handlers) UserBlock(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())

	target, err := h.users.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if target == nil {
		h.notFound(w, r)
		return
	}
	if !d.CanBlock(target) {
		h.forbidden(w, r)
		return
	}

	blocked, err := strconv.ParseBool(r.FormValue("blocked"))
	if err != nil {
		blocked = !target.Blocked
	}

	if err := h.users.SetBlocked(target.ID, blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.notFound(w, r)
			return
		}
		h.serverError(w, r, err)
		return
	}

	action, notice := models.AuditUserUnblock, target.Email+" unblocked"
	if blocked {
		action, notice = models.AuditUserBlock, target.Email+" blocked"
	}
	h.recordAudit(r, action, "user", target.ID, target.Email)
	h.logger.Info("user block changed", "email", target.Email, "blocked", blocked, "by", d.Actor().Email)
	h.redirect(w, r, "/users", flash.Success, notice)
}
