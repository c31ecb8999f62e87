package handlers

import (
	"net/http"

	"github.com/foxzi/listmail/internal/access"
)

// latestStarted is the number of in-progress mailings listed on the dashboard
const latestStarted = 5

// Dashboard shows counters scoped to what the user may see
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())

	stats, err := h.stats.Dashboard(d.OwnerScope(), latestStarted)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "dashboard", "Dashboard", map[string]any{
		"Stats": stats,
	})
}
