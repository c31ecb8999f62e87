package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/email"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/views"
)

// RecipientList shows the recipients visible to the user
func (h *Handlers) RecipientList(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	page, offset := pageParams(r)
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	recipients, total, err := h.recipients.List(models.RecipientFilter{
		OwnerID: d.OwnerScope(),
		Search:  search,
		Limit:   perPage,
		Offset:  offset,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	query := r.URL.Query()
	query.Del("page")
	h.render(w, r, "recipients", "Recipients", map[string]any{
		"Recipients": recipients,
		"Search":     search,
		"CanCreate":  d.CanCreate(access.KindRecipient),
		"Pager":      views.NewPager("/recipients", query, page, perPage, total),
	})
}

// RecipientNew renders an empty recipient form
func (h *Handlers) RecipientNew(w http.ResponseWriter, r *http.Request) {
	if !access.FromContext(r.Context()).CanCreate(access.KindRecipient) {
		h.forbidden(w, r)
		return
	}
	h.renderRecipientForm(w, r, http.StatusOK, &models.Recipient{}, "")
}

// RecipientCreate stores a new recipient owned by the user
func (h *Handlers) RecipientCreate(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	if !d.CanCreate(access.KindRecipient) {
		h.forbidden(w, r)
		return
	}

	rc := &models.Recipient{OwnerID: d.Actor().ID}
	if msg := parseRecipientForm(r, rc); msg != "" {
		h.renderRecipientForm(w, r, http.StatusBadRequest, rc, msg)
		return
	}

	if err := h.recipients.Create(rc); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			h.renderRecipientForm(w, r, http.StatusConflict, rc, "A recipient with this email already exists")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("recipient created", "id", rc.ID, "owner", d.Actor().Email)
	h.redirect(w, r, fmt.Sprintf("/recipients/%d", rc.ID), flash.Success, "Recipient created")
}

// RecipientView shows one recipient
func (h *Handlers) RecipientView(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.loadRecipient(w, r)
	if !ok {
		return
	}
	d := access.FromContext(r.Context())
	h.render(w, r, "recipient", rc.Email, map[string]any{
		"Recipient": rc,
		"CanMutate": d.CanMutate(access.KindRecipient, rc.OwnerID),
	})
}

// RecipientEdit renders the form for an existing recipient
func (h *Handlers) RecipientEdit(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.loadRecipient(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindRecipient, rc.OwnerID) {
		h.forbidden(w, r)
		return
	}
	h.renderRecipientForm(w, r, http.StatusOK, rc, "")
}

// RecipientUpdate saves changes to a recipient
func (h *Handlers) RecipientUpdate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.loadRecipient(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindRecipient, rc.OwnerID) {
		h.forbidden(w, r)
		return
	}

	if msg := parseRecipientForm(r, rc); msg != "" {
		h.renderRecipientForm(w, r, http.StatusBadRequest, rc, msg)
		return
	}

	if err := h.recipients.Update(rc); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			h.renderRecipientForm(w, r, http.StatusConflict, rc, "A recipient with this email already exists")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.redirect(w, r, fmt.Sprintf("/recipients/%d", rc.ID), flash.Success, "Recipient updated")
}

// RecipientDelete removes a recipient from storage and from every mailing
func (h *Handlers) RecipientDelete(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.loadRecipient(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindRecipient, rc.OwnerID) {
		h.forbidden(w, r)
		return
	}

	if err := h.recipients.Delete(rc.ID); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("recipient deleted", "id", rc.ID)
	h.redirect(w, r, "/recipients", flash.Success, "Recipient deleted")
}

// loadRecipient fetches the {id} recipient. Recipients the user may not see
// are reported as missing.
func (h *Handlers) loadRecipient(w http.ResponseWriter, r *http.Request) (*models.Recipient, bool) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return nil, false
	}

	rc, err := h.recipients.GetByID(id)
	if err != nil {
		h.serverError(w, r, err)
		return nil, false
	}
	if rc == nil || !access.FromContext(r.Context()).CanView(rc.OwnerID) {
		h.notFound(w, r)
		return nil, false
	}
	return rc, true
}

// parseRecipientForm fills rc from the submitted form and returns a
// validation message, or "" when the input is valid
func parseRecipientForm(r *http.Request, rc *models.Recipient) string {
	if err := r.ParseForm(); err != nil {
		return "Invalid form data"
	}

	rc.FullName = strings.TrimSpace(r.FormValue("full_name"))
	rc.Comment = strings.TrimSpace(r.FormValue("comment"))

	addr, err := email.Normalize(r.FormValue("email"))
	if err != nil {
		rc.Email = r.FormValue("email")
		return "Enter a valid email address"
	}
	rc.Email = addr
	return ""
}

func (h *Handlers) renderRecipientForm(w http.ResponseWriter, r *http.Request, status int, rc *models.Recipient, message string) {
	title := "New recipient"
	if rc.ID != 0 {
		title = "Edit recipient"
	}
	h.renderStatus(w, r, status, "recipient_form", title, map[string]any{
		"Recipient": rc,
		"Error":     message,
	})
}
