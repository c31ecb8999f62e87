package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/models"
)

// stateTTL bounds how long a login may sit at the identity provider
const stateTTL = 10 * time.Minute

// OIDCProvider handles OIDC authentication
type OIDCProvider struct {
	config   *config.OIDCConfig
	provider *oidc.Provider
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier

	mu     sync.Mutex
	states map[string]time.Time // state -> issue time
	now    func() time.Time
}

// UserInfo is the identity returned by the provider
type UserInfo struct {
	Email  string
	Name   string
	Groups []string
	Role   models.Role
}

// NewOIDCProvider discovers the issuer and prepares the code flow
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCProvider{
		config:   cfg,
		provider: provider,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		states:   make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// AuthCodeURL generates the authorization URL with a random state
func (p *OIDCProvider) AuthCodeURL() (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", err
	}

	p.mu.Lock()
	p.pruneStates()
	p.states[state] = p.now()
	p.mu.Unlock()

	return p.oauth2.AuthCodeURL(state), state, nil
}

// consumeState reports whether state was issued and is still fresh. A
// state is accepted only once.
func (p *OIDCProvider) consumeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	issued, ok := p.states[state]
	if !ok {
		return false
	}
	delete(p.states, state)
	return p.now().Sub(issued) <= stateTTL
}

func (p *OIDCProvider) pruneStates() {
	now := p.now()
	for s, issued := range p.states {
		if now.Sub(issued) > stateTTL {
			delete(p.states, s)
		}
	}
}

// Exchange trades the authorization code for a verified identity
func (p *OIDCProvider) Exchange(ctx context.Context, state, code string) (*UserInfo, error) {
	if !p.consumeState(state) {
		return nil, fmt.Errorf("invalid state")
	}

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	var claims struct {
		Email         string   `json:"email"`
		EmailVerified bool     `json:"email_verified"`
		Name          string   `json:"name"`
		Groups        []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("id_token has no email claim")
	}

	if len(p.config.AllowedGroups) > 0 && !anyGroup(claims.Groups, p.config.AllowedGroups) {
		return nil, fmt.Errorf("user not in allowed groups")
	}

	return &UserInfo{
		Email:  claims.Email,
		Name:   claims.Name,
		Groups: claims.Groups,
		Role:   RoleForGroups(p.config, claims.Groups),
	}, nil
}

// RoleForGroups maps provider groups to a role. Superuser groups win over
// manager groups; everyone else is a plain user.
func RoleForGroups(cfg *config.OIDCConfig, groups []string) models.Role {
	switch {
	case anyGroup(groups, cfg.SuperuserGroups):
		return models.RoleSuperuser
	case anyGroup(groups, cfg.ManagerGroups):
		return models.RoleManager
	default:
		return models.RoleUser
	}
}

func anyGroup(have, want []string) bool {
	for _, g := range want {
		if slices.Contains(have, g) {
			return true
		}
	}
	return false
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
