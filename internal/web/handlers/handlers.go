package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"

	"github.com/foxzi/listmail/internal/access"
	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/ipfilter"
	"github.com/foxzi/listmail/internal/mailing"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/transport"
	"github.com/foxzi/listmail/internal/web/auth"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/middleware"
	"github.com/foxzi/listmail/internal/web/views"
)

// perPage is the page size of list views
const perPage = 25

type Handlers struct {
	cfg        *config.Config
	users      *repository.UserRepository
	sessions   *repository.SessionRepository
	recipients *repository.RecipientRepository
	messages   *repository.MessageRepository
	mailings   *repository.MailingRepository
	attempts   *repository.AttemptRepository
	stats      *repository.StatsRepository
	audit      *repository.AuditRepository
	dispatcher *mailing.Dispatcher
	transport  transport.Transport
	views      *views.Engine
	flash      *flash.Store
	oidc       *auth.OIDCProvider
	throttle   *auth.LoginThrottle
	proxies    *ipfilter.Filter
	logger     *slog.Logger
}

func New(cfg *config.Config, db *sql.DB, dispatcher *mailing.Dispatcher, tr transport.Transport, v *views.Engine, oidc *auth.OIDCProvider, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:        cfg,
		users:      repository.NewUserRepository(db),
		sessions:   repository.NewSessionRepository(db),
		recipients: repository.NewRecipientRepository(db),
		messages:   repository.NewMessageRepository(db),
		mailings:   repository.NewMailingRepository(db),
		attempts:   repository.NewAttemptRepository(db),
		stats:      repository.NewStatsRepository(db),
		audit:      repository.NewAuditRepository(db),
		dispatcher: dispatcher,
		transport:  tr,
		views:      v,
		flash:      flash.NewStore(cfg.Auth.SessionSecret, cfg.Server.TLS.Enabled),
		oidc:       oidc,
		throttle:   auth.NewLoginThrottle(logger),
		proxies:    ipfilter.New(nil, cfg.Server.TrustedProxies, logger),
		logger:     logger.With("component", "web"),
	}
}

// Sessions exposes the session store for the auth middleware
func (h *Handlers) Sessions() *repository.SessionRepository {
	return h.sessions
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// render executes a page template with status 200
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	h.renderStatus(w, r, http.StatusOK, name, title, data)
}

// renderStatus executes a page template. Flash notices are consumed here and
// the page is buffered so a template error never leaves a half-written page.
func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	page := &views.Page{
		Title:   title,
		User:    middleware.UserFromContext(r.Context()),
		Access:  access.FromContext(r.Context()),
		Flashes: h.flash.Pop(w, r),
		CSRF:    csrf.TemplateField(r),
		Data:    data,
	}

	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, page); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Helper for JSON responses
func (h *Handlers) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// Helper for errors
func (h *Handlers) error(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", "status", status, "message", message, "path", r.URL.Path)
	}
	h.renderStatus(w, r, status, "error", http.StatusText(status), map[string]any{
		"Status":  status,
		"Message": message,
	})
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.error(w, r, http.StatusNotFound, "The page you are looking for does not exist.")
}

func (h *Handlers) forbidden(w http.ResponseWriter, r *http.Request) {
	h.error(w, r, http.StatusForbidden, "You do not have permission to do that.")
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	h.error(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// redirect flashes a notice and sends the browser to url
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, url, level, text string) {
	if text != "" {
		h.flash.Add(w, r, level, text)
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// parseID reads the numeric {id} route parameter
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pageParams returns the requested page number and the matching offset
func pageParams(r *http.Request) (page, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page, (page - 1) * perPage
}

// clientIP returns the caller's address, honouring forwarding headers from
// trusted proxies only
func (h *Handlers) clientIP(r *http.Request) string {
	if ip := h.proxies.ClientIP(r); ip != nil {
		return ip.String()
	}
	return ""
}

// recordAudit writes an audit entry for the current user. Failures are
// logged and never fail the request.
func (h *Handlers) recordAudit(r *http.Request, action, entityType, entityID, details string) {
	entry := &models.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  h.clientIP(r),
	}
	if u := middleware.UserFromContext(r.Context()); u != nil {
		entry.UserID = u.ID
		entry.UserEmail = u.Email
	}
	if err := h.audit.Log(entry); err != nil {
		h.logger.Error("failed to write audit log", "action", action, "error", err)
	}
}
