// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package token implements the Token Provider: a durable OAuth token
// held in the Secret Vault, refreshed on demand and by a background
// loop, exposing golang.org/x/oauth2's Token shape so downstream HTTP
// clients (the File Fetcher) can be built with the
// standard oauth2.TokenSource machinery while the refresh/backoff
// bookkeeping stays under our control, per design note §9's preference
// for explicit created/retrieved/rotated semantics over an opaque SDK
// TokenSource.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/weixin07/listcompare/internal/apperr"
	"github.com/weixin07/listcompare/internal/vault"
)

const (
	tokenAccount   = "google-oauth-token"
	expiryBuffer   = 5 * time.Minute
	minRetryDelay  = 1 * time.Minute
	backgroundTick = 60 * time.Second
)

// StoredToken is the JSON shape persisted to the vault under
// tokenAccount, and the wire shape of the remote token endpoint's
// response.
type StoredToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Scope        string     `json:"scope"`
	TokenType    string     `json:"token_type"`
	NextRefresh  *time.Time `json:"next_refresh,omitempty"`
	LastFailure  string     `json:"last_failure,omitempty"`
}

// OAuth2 converts to the standard library's oauth2.Token, for handing to
// an oauth2.StaticTokenSource-backed HTTP client.
func (t StoredToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.ExpiresAt,
	}
}

// Identity is the minimal profile returned by the userinfo endpoint.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Recorder is the subset of the Event Sink the Provider needs, kept as
// an interface so tests don't need a real telemetry.Sink.
type Recorder interface {
	Record(name string, payload map[string]any)
}

// Provider is the Token Provider. It is safe for concurrent use; refresh
// is guarded so at most one is in flight at a time.
type Provider struct {
	vault            *vault.Vault
	httpClient       *http.Client
	tokenEndpoint    string
	userinfoEndpoint string
	clientID         string
	clientSecret     string
	recorder         Recorder

	mu          sync.Mutex
	current     *StoredToken
	refreshing  bool
	nextRefresh time.Time
	lastFailure string
}

// Config configures a Provider.
type Config struct {
	Vault            *vault.Vault
	HTTPClient       *http.Client
	TokenEndpoint    string
	UserinfoEndpoint string
	ClientID         string
	ClientSecret     string
	Recorder         Recorder
}

// New constructs a Provider. If a token is already stored in the vault
// it is loaded eagerly; absence of a stored token is not an error (it
// simply means EnsureToken will fail with "sign-in required" until one
// is stored).
func New(cfg Config) (*Provider, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	p := &Provider{
		vault:            cfg.Vault,
		httpClient:       httpClient,
		tokenEndpoint:    cfg.TokenEndpoint,
		userinfoEndpoint: cfg.UserinfoEndpoint,
		clientID:         cfg.ClientID,
		clientSecret:     cfg.ClientSecret,
		recorder:         cfg.Recorder,
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) load() error {
	material, _, err := p.vault.Ensure(tokenAccount)
	if err != nil {
		return err
	}
	raw := material.Reveal()
	if len(raw) == 0 {
		return nil
	}
	var st StoredToken
	if err := json.Unmarshal(raw, &st); err != nil {
		// A freshly-generated random secret (no token stored yet) won't
		// parse as JSON; that's the "no token yet" case, not an error.
		return nil
	}
	p.mu.Lock()
	p.current = &st
	p.mu.Unlock()
	return nil
}

func (p *Provider) persist(st StoredToken) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return apperr.JSON(err)
	}
	return p.vault.Set(tokenAccount, string(raw))
}

// EnsureToken returns the current token if it has more than 5 minutes
// of remaining validity; otherwise it refreshes synchronously.
func (p *Provider) EnsureToken(ctx context.Context) (*StoredToken, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current != nil && current.ExpiresAt.After(time.Now().Add(expiryBuffer)) {
		return current, nil
	}
	if current == nil || current.RefreshToken == "" {
		return nil, apperr.Config("google sign-in required")
	}
	return p.refresh(ctx, current.RefreshToken, current.Scope)
}

// RefreshIfDue refreshes the token if NextRefresh has elapsed, honoring
// an at-most-one-concurrent-refresh guard.
func (p *Provider) RefreshIfDue(ctx context.Context) error {
	p.mu.Lock()
	if p.refreshing {
		p.mu.Unlock()
		return nil
	}
	due := p.nextRefresh.IsZero() || !time.Now().Before(p.nextRefresh)
	current := p.current
	if !due || current == nil || current.RefreshToken == "" {
		p.mu.Unlock()
		return nil
	}
	hadFailure := p.lastFailure != ""
	p.refreshing = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.refreshing = false
		p.mu.Unlock()
	}()

	_, err := p.refresh(ctx, current.RefreshToken, current.Scope)
	if err != nil {
		failure := sanitize(err.Error())
		p.mu.Lock()
		p.lastFailure = failure
		p.nextRefresh = time.Now().Add(minRetryDelay)
		withFailure := *current
		withFailure.LastFailure = failure
		p.current = &withFailure
		p.mu.Unlock()
		_ = p.persist(withFailure)
		if p.recorder != nil {
			p.recorder.Record("refresh_error", map[string]any{"reason": failure})
		}
		return err
	}

	p.mu.Lock()
	p.lastFailure = ""
	p.mu.Unlock()
	if hadFailure && p.recorder != nil {
		p.recorder.Record("refresh_recovered", nil)
	}
	return nil
}

// Keepalive refreshes if due, then fetches the current identity,
// clearing any previously recorded failure on success.
func (p *Provider) Keepalive(ctx context.Context) (*Identity, error) {
	if err := p.RefreshIfDue(ctx); err != nil {
		return nil, err
	}
	current, err := p.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := p.fetchIdentity(ctx, current.AccessToken)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.lastFailure = ""
	p.mu.Unlock()
	return identity, nil
}

// SignOut deletes the stored token.
func (p *Provider) SignOut() error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return p.vault.Delete(tokenAccount)
}

// LastFailure reports the most recently recorded refresh failure, if any.
func (p *Provider) LastFailure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFailure
}

// RunBackground starts the cooperative 60-second refresh loop. It
// blocks until ctx is cancelled.
func (p *Provider) RunBackground(ctx context.Context) {
	ticker := time.NewTicker(backgroundTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.RefreshIfDue(ctx)
		}
	}
}

func (p *Provider) refresh(ctx context.Context, refreshToken, scope string) (*StoredToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenEndpoint, httpBody(form))
	if err != nil {
		return nil, apperr.HTTP(apperr.HTTPClassOther, 0, p.tokenEndpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, p.tokenEndpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusError(resp.StatusCode, p.tokenEndpoint)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.JSON(err)
	}

	buffer := body.ExpiresIn
	if buffer > 30 {
		buffer = 30
	}
	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn-buffer) * time.Second)
	next := expiresAt.Add(-expiryBuffer)
	if next.Before(time.Now().Add(minRetryDelay)) {
		next = time.Now().Add(minRetryDelay)
	}

	scopeOut := body.Scope
	if scopeOut == "" {
		scopeOut = scope
	}
	st := StoredToken{
		AccessToken:  body.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scope:        scopeOut,
		TokenType:    body.TokenType,
		NextRefresh:  &next,
	}

	if err := p.persist(st); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.current = &st
	p.nextRefresh = next
	p.mu.Unlock()
	return &st, nil
}

func (p *Provider) fetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoEndpoint, nil)
	if err != nil {
		return nil, apperr.HTTP(apperr.HTTPClassOther, 0, p.userinfoEndpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, p.userinfoEndpoint)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatusError(resp.StatusCode, p.userinfoEndpoint)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, apperr.JSON(err)
	}
	return &identity, nil
}

func classifyStatusError(status int, host string) error {
	class := apperr.HTTPClassOther
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		class = apperr.HTTPClassRateLimited
	}
	return apperr.HTTP(class, status, host, nil)
}

func classifyTransportError(err error, host string) error {
	class := apperr.HTTPClassConnect
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		class = apperr.HTTPClassTimeout
	}
	return apperr.HTTP(class, 0, host, err)
}

func httpBody(form url.Values) *strings.Reader {
	return strings.NewReader(form.Encode())
}

var idPattern = regexp.MustCompile(`[A-Za-z0-9_-]{20,}`)

// sanitize redacts long opaque identifiers (Drive file IDs, place IDs,
// tokens) from an error message before it is written to telemetry, per
// the error taxonomy's sanitized-summary contract.
func sanitize(msg string) string {
	return idPattern.ReplaceAllString(msg, "[redacted]")
}
