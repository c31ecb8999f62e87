package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/mailing"
	"github.com/foxzi/listmail/internal/models"
)

type apiError struct {
	Error string `json:"error"`
}

type dispatchResponse struct {
	*mailing.Result
	Total int    `json:"total"`
	Error string `json:"error,omitempty"`
}

// APIDispatch sends a mailing and returns the tally as JSON.
// 409 means the mailing was already sent or is being sent.
func (h *Handlers) APIDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.json(w, http.StatusNotFound, apiError{Error: "mailing not found"})
		return
	}

	m, err := h.mailings.GetByIDContext(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load mailing", "mailing_id", id, "error", err)
		h.json(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}
	d := access.FromContext(r.Context())
	if m == nil || !d.CanView(m.OwnerID) {
		h.json(w, http.StatusNotFound, apiError{Error: "mailing not found"})
		return
	}
	if !d.CanDispatch(m.OwnerID) {
		h.json(w, http.StatusForbidden, apiError{Error: "not allowed to send this mailing"})
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), id)
	switch {
	case errors.Is(err, mailing.ErrInvalidTransition):
		h.json(w, http.StatusConflict, apiError{Error: "mailing has already been sent or is in progress"})
		return
	case errors.Is(err, mailing.ErrNotFound):
		h.json(w, http.StatusNotFound, apiError{Error: "mailing not found"})
		return
	case result == nil:
		h.logger.Error("dispatch failed", "mailing_id", id, "error", err)
		h.json(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}

	h.recordAudit(r, models.AuditMailingDispatch, "mailing", strconv.FormatInt(id, 10), result.Summary())
	if err != nil {
		h.logger.Error("dispatch finished with error", "mailing_id", id, "error", err)
		h.json(w, http.StatusInternalServerError, dispatchResponse{Result: result, Total: result.Total(), Error: dispatchProblem(err)})
		return
	}
	h.json(w, http.StatusOK, dispatchResponse{Result: result, Total: result.Total()})
}

// APIStats returns the dashboard counters as JSON
func (h *Handlers) APIStats(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	stats, err := h.stats.Dashboard(d.OwnerScope(), latestStarted)
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		h.json(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}
	h.json(w, http.StatusOK, stats)
}
