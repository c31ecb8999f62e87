package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/views"
)

// maxSubjectLength matches the subject column limit of the form
const maxSubjectLength = 255

// MessageList shows the messages visible to the user
func (h *Handlers) MessageList(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	page, offset := pageParams(r)
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	messages, total, err := h.messages.List(models.MessageFilter{
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
	h.render(w, r, "messages", "Messages", map[string]any{
		"Messages":  messages,
		"Search":    search,
		"CanCreate": d.CanCreate(access.KindMessage),
		"Pager":     views.NewPager("/messages", query, page, perPage, total),
	})
}

// MessageNew renders an empty message form
func (h *Handlers) MessageNew(w http.ResponseWriter, r *http.Request) {
	if !access.FromContext(r.Context()).CanCreate(access.KindMessage) {
		h.forbidden(w, r)
		return
	}
	h.renderMessageForm(w, r, http.StatusOK, &models.Message{}, "")
}

// MessageCreate stores a new message owned by the user
func (h *Handlers) MessageCreate(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	if !d.CanCreate(access.KindMessage) {
		h.forbidden(w, r)
		return
	}

	m := &models.Message{OwnerID: d.Actor().ID}
	if msg := parseMessageForm(r, m); msg != "" {
		h.renderMessageForm(w, r, http.StatusBadRequest, m, msg)
		return
	}

	if err := h.messages.Create(m); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("message created", "id", m.ID, "owner", d.Actor().Email)
	h.redirect(w, r, fmt.Sprintf("/messages/%d", m.ID), flash.Success, "Message created")
}

// MessageView shows a message with its rendered preview
func (h *Handlers) MessageView(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMessage(w, r)
	if !ok {
		return
	}
	d := access.FromContext(r.Context())
	h.render(w, r, "message", m.Subject, map[string]any{
		"Message":   m,
		"CanMutate": d.CanMutate(access.KindMessage, m.OwnerID),
	})
}

// MessageEdit renders the form for an existing message
func (h *Handlers) MessageEdit(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMessage(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindMessage, m.OwnerID) {
		h.forbidden(w, r)
		return
	}
	h.renderMessageForm(w, r, http.StatusOK, m, "")
}

// MessageUpdate saves changes to a message
func (h *Handlers) MessageUpdate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMessage(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindMessage, m.OwnerID) {
		h.forbidden(w, r)
		return
	}

	if msg := parseMessageForm(r, m); msg != "" {
		h.renderMessageForm(w, r, http.StatusBadRequest, m, msg)
		return
	}

	if err := h.messages.Update(m); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.redirect(w, r, fmt.Sprintf("/messages/%d", m.ID), flash.Success, "Message updated")
}

// MessageDelete removes a message together with the mailings that use it.
// Messages being sent right now are kept.
func (h *Handlers) MessageDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMessage(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindMessage, m.OwnerID) {
		h.forbidden(w, r)
		return
	}

	inUse, err := h.mailings.CountStartedByMessage(m.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if inUse > 0 {
		h.redirect(w, r, fmt.Sprintf("/messages/%d", m.ID), flash.Warning, "This message is being sent and cannot be deleted now")
		return
	}

	if err := h.messages.Delete(m.ID); err != nil {
		if errors.Is(err, repository.ErrMailingInProgress) {
			h.redirect(w, r, fmt.Sprintf("/messages/%d", m.ID), flash.Warning, "This message is being sent and cannot be deleted now")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("message deleted", "id", m.ID)
	h.redirect(w, r, "/messages", flash.Success, "Message deleted")
}

func (h *Handlers) loadMessage(w http.ResponseWriter, r *http.Request) (*models.Message, bool) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return nil, false
	}

	m, err := h.messages.GetByID(id)
	if err != nil {
		h.serverError(w, r, err)
		return nil, false
	}
	if m == nil || !access.FromContext(r.Context()).CanView(m.OwnerID) {
		h.notFound(w, r)
		return nil, false
	}
	return m, true
}

func parseMessageForm(r *http.Request, m *models.Message) string {
	if err := r.ParseForm(); err != nil {
		return "Invalid form data"
	}

	m.Subject = strings.TrimSpace(r.FormValue("subject"))
	m.Body = r.FormValue("body")

	switch {
	case m.Subject == "":
		return "Subject is required"
	case utf8.RuneCountInString(m.Subject) > maxSubjectLength:
		return fmt.Sprintf("Subject must be at most %d characters", maxSubjectLength)
	case strings.ContainsAny(m.Subject, "\r\n"):
		return "Subject must be a single line"
	}
	return ""
}

func (h *Handlers) renderMessageForm(w http.ResponseWriter, r *http.Request, status int, m *models.Message, message string) {
	title := "New message"
	if m.ID != 0 {
		title = "Edit message"
	}
	h.renderStatus(w, r, status, "message_form", title, map[string]any{
		"Message": m,
		"Error":   message,
	})
}
