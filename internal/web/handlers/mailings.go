package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/mailing"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/views"
)

// formTimeLayout is the value format of datetime-local inputs
const formTimeLayout = "2006-01-02T15:04"

// maxAttemptsShown bounds the attempt table on the mailing page
const maxAttemptsShown = 500

// MailingList shows the mailings visible to the user, optionally by status
func (h *Handlers) MailingList(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	page, offset := pageParams(r)

	status := models.MailingStatus(r.URL.Query().Get("status"))
	if !status.Valid() {
		status = ""
	}

	mailings, total, err := h.mailings.List(models.MailingFilter{
		OwnerID: d.OwnerScope(),
		Status:  status,
		Limit:   perPage,
		Offset:  offset,
	})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	query := r.URL.Query()
	query.Del("page")
	h.render(w, r, "mailings", "Mailings", map[string]any{
		"Mailings":  mailings,
		"Status":    status,
		"CanCreate": d.CanCreate(access.KindMailing),
		"Pager":     views.NewPager("/mailings", query, page, perPage, total),
	})
}

// MailingNew renders an empty mailing form
func (h *Handlers) MailingNew(w http.ResponseWriter, r *http.Request) {
	if !access.FromContext(r.Context()).CanCreate(access.KindMailing) {
		h.forbidden(w, r)
		return
	}

	start := time.Now().Truncate(time.Hour).Add(time.Hour)
	m := &models.Mailing{StartTime: start, EndTime: start.Add(24 * time.Hour)}
	h.renderMailingForm(w, r, http.StatusOK, m, nil, "")
}

// MailingCreate stores a new mailing in the created state
func (h *Handlers) MailingCreate(w http.ResponseWriter, r *http.Request) {
	d := access.FromContext(r.Context())
	if !d.CanCreate(access.KindMailing) {
		h.forbidden(w, r)
		return
	}

	m := &models.Mailing{OwnerID: d.Actor().ID}
	recipientIDs, msg, err := h.parseMailingForm(r, d, m)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if msg != "" {
		h.renderMailingForm(w, r, http.StatusBadRequest, m, recipientIDs, msg)
		return
	}

	if err := h.mailings.Create(m, recipientIDs); err != nil {
		h.serverError(w, r, err)
		return
	}

	h.logger.Info("mailing created", "id", m.ID, "recipients", len(recipientIDs), "owner", d.Actor().Email)
	h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Success, "Mailing created")
}

// MailingView shows a mailing with its recipients and delivery attempts
func (h *Handlers) MailingView(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMailing(w, r)
	if !ok {
		return
	}
	d := access.FromContext(r.Context())

	recipients, err := h.mailings.ListRecipients(r.Context(), m.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	attempts, _, err := h.attempts.List(models.AttemptFilter{MailingID: m.ID, Limit: maxAttemptsShown})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	success, fail, err := h.attempts.Counts(m.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	canMutate := d.CanMutate(access.KindMailing, m.OwnerID)
	h.render(w, r, "mailing", fmt.Sprintf("Mailing #%d", m.ID), map[string]any{
		"Mailing":     m,
		"Recipients":  recipients,
		"Attempts":    attempts,
		"Success":     success,
		"Fail":        fail,
		"CanDispatch": d.CanDispatch(m.OwnerID),
		"CanEdit":     canMutate && m.Status == models.MailingCreated,
		"CanDelete":   canMutate && m.Status != models.MailingStarted,
	})
}

// MailingEdit renders the form for a mailing that has not been sent
func (h *Handlers) MailingEdit(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMailing(w, r)
	if !ok || !h.checkEditable(w, r, m) {
		return
	}

	ids, err := h.mailings.RecipientIDs(m.ID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.renderMailingForm(w, r, http.StatusOK, m, ids, "")
}

// MailingUpdate saves schedule, message and recipients. The status is only
// ever moved by dispatch.
func (h *Handlers) MailingUpdate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMailing(w, r)
	if !ok || !h.checkEditable(w, r, m) {
		return
	}
	d := access.FromContext(r.Context())

	recipientIDs, msg, err := h.parseMailingForm(r, d, m)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if msg != "" {
		h.renderMailingForm(w, r, http.StatusBadRequest, m, recipientIDs, msg)
		return
	}

	if err := h.mailings.Update(m, recipientIDs); err != nil {
		if errors.Is(err, repository.ErrMailingLocked) {
			h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Warning, "Only mailings that have not been sent can be edited")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Success, "Mailing updated")
}

// MailingDelete removes a mailing and its attempts. A mailing that is being
// sent is kept.
func (h *Handlers) MailingDelete(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMailing(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanMutate(access.KindMailing, m.OwnerID) {
		h.forbidden(w, r)
		return
	}
	if m.Status == models.MailingStarted {
		h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Warning, "This mailing is being sent and cannot be deleted now")
		return
	}

	if err := h.mailings.Delete(m.ID); err != nil {
		if errors.Is(err, repository.ErrMailingInProgress) {
			h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Warning, "This mailing is being sent and cannot be deleted now")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.recordAudit(r, models.AuditMailingDelete, "mailing", strconv.FormatInt(m.ID, 10), m.MessageSubject)
	h.logger.Info("mailing deleted", "id", m.ID)
	h.redirect(w, r, "/mailings", flash.Success, "Mailing deleted")
}

// MailingSend dispatches a mailing and reports the tally. A mailing that is
// not in the created state is left untouched and the user gets a warning.
func (h *Handlers) MailingSend(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMailing(w, r)
	if !ok {
		return
	}
	if !access.FromContext(r.Context()).CanDispatch(m.OwnerID) {
		h.forbidden(w, r)
		return
	}

	back := fmt.Sprintf("/mailings/%d", m.ID)
	result, err := h.dispatcher.Dispatch(r.Context(), m.ID)
	switch {
	case errors.Is(err, mailing.ErrInvalidTransition):
		h.redirect(w, r, back, flash.Warning, fmt.Sprintf("Mailing #%d has already been sent or is in progress", m.ID))
		return
	case errors.Is(err, mailing.ErrNotFound):
		h.notFound(w, r)
		return
	case result == nil:
		h.serverError(w, r, err)
		return
	}

	h.recordAudit(r, models.AuditMailingDispatch, "mailing", strconv.FormatInt(m.ID, 10), result.Summary())
	if err != nil {
		h.logger.Error("dispatch finished with error", "mailing_id", m.ID, "error", err)
		h.redirect(w, r, back, flash.Error, result.Summary()+", but "+dispatchProblem(err))
		return
	}
	h.redirect(w, r, back, flash.Success, result.Summary())
}

// dispatchProblem describes an error returned together with a dispatch result
func dispatchProblem(err error) string {
	switch {
	case errors.Is(err, mailing.ErrRecipientsUnavailable):
		return "the recipients could not be loaded and nothing was sent"
	case errors.Is(err, mailing.ErrFinishFailed):
		return "the final status could not be saved"
	default:
		return "the run did not complete cleanly"
	}
}

func (h *Handlers) loadMailing(w http.ResponseWriter, r *http.Request) (*models.Mailing, bool) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return nil, false
	}

	m, err := h.mailings.GetByIDContext(r.Context(), id)
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

// checkEditable reports whether the user may change the mailing now,
// writing the response when not
func (h *Handlers) checkEditable(w http.ResponseWriter, r *http.Request, m *models.Mailing) bool {
	if !access.FromContext(r.Context()).CanMutate(access.KindMailing, m.OwnerID) {
		h.forbidden(w, r)
		return false
	}
	if m.Status != models.MailingCreated {
		h.redirect(w, r, fmt.Sprintf("/mailings/%d", m.ID), flash.Warning, "Only mailings that have not been sent can be edited")
		return false
	}
	return true
}

// parseMailingForm fills m from the form. It returns the selected recipient
// IDs and a validation message, or "" when the input is valid.
func (h *Handlers) parseMailingForm(r *http.Request, d access.Decision, m *models.Mailing) ([]int64, string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, "Invalid form data", nil
	}

	var ids []int64
	for _, v := range r.Form["recipient_ids"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, "Invalid recipient selection", nil
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	start, startErr := time.ParseInLocation(formTimeLayout, r.FormValue("start_time"), time.Local)
	end, endErr := time.ParseInLocation(formTimeLayout, r.FormValue("end_time"), time.Local)
	if startErr == nil {
		m.StartTime = start
	}
	if endErr == nil {
		m.EndTime = end
	}
	messageID, _ := strconv.ParseInt(r.FormValue("message_id"), 10, 64)
	m.MessageID = messageID

	switch {
	case startErr != nil:
		return ids, "Enter a valid start time", nil
	case endErr != nil:
		return ids, "Enter a valid end time", nil
	case !end.After(start):
		return ids, "End time must be after start time", nil
	}

	msg, err := h.messages.GetByID(messageID)
	if err != nil {
		return ids, "", err
	}
	if msg == nil || !d.CanView(msg.OwnerID) {
		return ids, "Choose a message", nil
	}

	recipients, err := h.recipients.GetByIDs(ids)
	if err != nil {
		return ids, "", err
	}
	if len(recipients) != len(ids) {
		return ids, "Some selected recipients no longer exist", nil
	}
	for _, rc := range recipients {
		if !d.CanView(rc.OwnerID) {
			return ids, "Some selected recipients are not available to you", nil
		}
	}
	return ids, "", nil
}

func (h *Handlers) renderMailingForm(w http.ResponseWriter, r *http.Request, status int, m *models.Mailing, selectedIDs []int64, message string) {
	d := access.FromContext(r.Context())

	// Editing someone else's mailing offers that owner's content
	scope := d.OwnerScope()
	if m.OwnerID != "" && m.OwnerID != d.Actor().ID {
		scope = m.OwnerID
	}

	messages, _, err := h.messages.List(models.MessageFilter{OwnerID: scope})
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	recipients, _, err := h.recipients.List(models.RecipientFilter{OwnerID: scope})
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	selected := make(map[int64]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}

	title := "New mailing"
	if m.ID != 0 {
		title = fmt.Sprintf("Edit mailing #%d", m.ID)
	}
	h.renderStatus(w, r, status, "mailing_form", title, map[string]any{
		"Mailing":    m,
		"Messages":   messages,
		"Recipients": recipients,
		"Selected":   selected,
		"Error":      message,
	})
}
