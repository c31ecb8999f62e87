package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/listmail/internal/email"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
	"github.com/foxzi/listmail/internal/transport"
	"github.com/foxzi/listmail/internal/web/auth"
	"github.com/foxzi/listmail/internal/web/flash"
	"github.com/foxzi/listmail/internal/web/middleware"
)

const oidcStateCookie = "listmail_oidc_state"

const (
	welcomeSubject = "Welcome to listmail"
	welcomeBody    = "Hello %s,\n\nthank you for registering. You can now start creating mailings.\n"
)

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, "", "")
}

// Login handles login form submission
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.LocalEnabled {
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, "", "Invalid form data")
		return
	}

	addr := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	ip := h.clientIP(r)

	if h.throttle.Blocked(ip) {
		h.logger.Warn("login refused", "email", addr, "reason", "throttled", "ip", ip)
		h.renderLogin(w, r, http.StatusTooManyRequests, addr, "Too many failed login attempts, try again later")
		return
	}

	user, err := h.users.GetByEmail(addr)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if user == nil {
		h.throttle.Failure(ip)
		h.logger.Warn("login failed", "email", addr, "reason", "unknown user", "ip", ip)
		h.renderLogin(w, r, http.StatusUnauthorized, addr, auth.ErrInvalidCredentials.Error())
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		h.throttle.Failure(ip)
		h.logger.Warn("login failed", "email", addr, "reason", "wrong password", "ip", ip)
		h.renderLogin(w, r, http.StatusUnauthorized, addr, auth.ErrInvalidCredentials.Error())
		return
	}
	h.throttle.Reset(ip)
	if user.Blocked {
		h.logger.Warn("login failed", "email", addr, "reason", "blocked", "ip", ip)
		h.renderLogin(w, r, http.StatusForbidden, addr, "This account is blocked")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Error("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// RegisterPage renders the self-registration form
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if !h.registrationOpen() {
		h.notFound(w, r)
		return
	}
	h.renderRegister(w, r, http.StatusOK, "", "", "")
}

// Register creates an ordinary user account and signs it in
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if !h.registrationOpen() {
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, "", "", "Invalid form data")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	addr, err := email.Normalize(r.FormValue("email"))
	if err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, r.FormValue("email"), name, "Enter a valid email address")
		return
	}

	password := r.FormValue("password")
	if password != r.FormValue("password_confirm") {
		h.renderRegister(w, r, http.StatusBadRequest, addr, name, "Passwords do not match")
		return
	}
	hash, err := auth.HashPassword(password, h.cfg.Auth.MinPasswordLength)
	if err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, addr, name, err.Error())
		return
	}

	user := &models.User{Email: addr, Name: name, PasswordHash: hash, Role: models.RoleUser}
	if err := h.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			h.renderRegister(w, r, http.StatusConflict, addr, name, "An account with this email already exists")
			return
		}
		h.serverError(w, r, err)
		return
	}
	h.logger.Info("user registered", "email", user.Email)

	if !h.startSession(w, r, user) {
		return
	}
	h.sendWelcome(r.Context(), user)
	h.redirect(w, r, "/", flash.Success, "Welcome, "+user.DisplayName())
}

// sendWelcome greets a newly registered user. A failed delivery is logged
// and does not undo the registration.
func (h *Handlers) sendWelcome(ctx context.Context, user *models.User) {
	if h.transport == nil {
		return
	}

	out, err := h.transport.Deliver(context.WithoutCancel(ctx), transport.Envelope{
		Sender:    h.cfg.Transport.From,
		Recipient: user.Email,
		Subject:   welcomeSubject,
		Body:      fmt.Sprintf(welcomeBody, user.DisplayName()),
	})
	switch {
	case err != nil:
		h.logger.Warn("failed to send welcome email", "email", user.Email, "error", err)
	case !out.Delivered:
		h.logger.Warn("welcome email rejected", "email", user.Email, "response", out.Response)
	default:
		h.logger.Debug("welcome email sent", "email", user.Email)
	}
}

// OIDCLogin initiates OIDC login flow
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLogin(w, r, http.StatusNotFound, "", "OIDC is not configured")
		return
	}

	url, state, err := h.oidc.AuthCodeURL()
	if err != nil {
		h.logger.Error("failed to generate auth URL", "error", err)
		h.renderLogin(w, r, http.StatusInternalServerError, "", "Failed to initiate login")
		return
	}

	// Bind the state to this browser as well as to the provider
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OIDCCallback handles OIDC callback
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLogin(w, r, http.StatusNotFound, "", "OIDC is not configured")
		return
	}

	stateCookie, err := r.Cookie(oidcStateCookie)
	if err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, "", "Invalid state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		h.renderLogin(w, r, http.StatusBadRequest, "", "Invalid state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errorDesc := r.URL.Query().Get("error_description")
		if errorDesc == "" {
			errorDesc = r.URL.Query().Get("error")
		}
		if errorDesc == "" {
			errorDesc = "Authorization failed"
		}
		h.renderLogin(w, r, http.StatusUnauthorized, "", errorDesc)
		return
	}

	info, err := h.oidc.Exchange(r.Context(), state, code)
	if err != nil {
		h.logger.Error("OIDC exchange failed", "error", err)
		h.renderLogin(w, r, http.StatusUnauthorized, "", "Authentication failed: "+err.Error())
		return
	}

	user, err := h.oidcUser(info)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if user.Blocked {
		h.logger.Warn("login failed", "email", user.Email, "reason", "blocked", "ip", h.clientIP(r))
		h.renderLogin(w, r, http.StatusForbidden, "", "This account is blocked")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// oidcUser finds or creates the account for an OIDC identity. When group
// mapping is configured the role follows the provider on every login.
func (h *Handlers) oidcUser(info *auth.UserInfo) (*models.User, error) {
	user, err := h.users.GetByEmail(info.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &models.User{Email: info.Email, Name: info.Name, Role: info.Role}
		if err := h.users.Create(user); err != nil {
			return nil, err
		}
		h.logger.Info("created OIDC user", "email", user.Email, "role", user.Role)
		return user, nil
	}

	mapped := len(h.cfg.Auth.OIDC.ManagerGroups) > 0 || len(h.cfg.Auth.OIDC.SuperuserGroups) > 0
	if mapped && user.Role != info.Role {
		if err := h.users.SetRole(user.ID, info.Role); err != nil {
			return nil, err
		}
		h.logger.Info("role updated from OIDC groups", "email", user.Email, "from", user.Role, "to", info.Role)
		user.Role = info.Role
	}
	return user, nil
}

// startSession opens a session and sets the cookie. It reports false after
// writing an error response.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	session, err := h.sessions.Create(user.ID, h.cfg.Auth.SessionTTL)
	if err != nil {
		h.serverError(w, r, err)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in", "email", user.Email, "ip", h.clientIP(r))
	err = h.audit.Log(&models.AuditEntry{
		UserID:    user.ID,
		UserEmail: user.Email,
		Action:    models.AuditUserLogin,
		IPAddress: h.clientIP(r),
	})
	if err != nil {
		h.logger.Error("failed to write audit log", "action", models.AuditUserLogin, "error", err)
	}
	return true
}

func (h *Handlers) registrationOpen() bool {
	return h.cfg.Auth.LocalEnabled && h.cfg.Auth.RegistrationOpen
}

func (h *Handlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, addr, message string) {
	h.renderStatus(w, r, status, "login", "Sign in", map[string]any{
		"LocalEnabled":     h.cfg.Auth.LocalEnabled,
		"OIDCEnabled":      h.cfg.Auth.OIDC.Enabled,
		"OIDCProvider":     h.cfg.Auth.OIDC.Provider,
		"RegistrationOpen": h.registrationOpen(),
		"Email":            addr,
		"Error":            message,
	})
}

func (h *Handlers) renderRegister(w http.ResponseWriter, r *http.Request, status int, addr, name, message string) {
	h.renderStatus(w, r, status, "register", "Register", map[string]any{
		"Email":             addr,
		"Name":              name,
		"MinPasswordLength": h.cfg.Auth.MinPasswordLength,
		"Error":             message,
	})
}
