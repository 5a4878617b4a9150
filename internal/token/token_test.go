// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weixin07/listcompare/internal/vault"
)

type recordedEvent struct {
	name    string
	payload map[string]any
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) Record(name string, payload map[string]any) {
	f.events = append(f.events, recordedEvent{name: name, payload: payload})
}

func seedToken(t *testing.T, v *vault.Vault, st StoredToken) {
	t.Helper()
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, v.Set(tokenAccount, string(raw)))
}

func TestEnsureTokenReturnsCachedTokenWhenFresh(t *testing.T) {
	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{
		AccessToken: "fresh-token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	})

	p, err := New(Config{Vault: v})
	require.NoError(t, err)

	st, err := p.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", st.AccessToken)
}

func TestEnsureTokenFailsWithoutSignIn(t *testing.T) {
	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	p, err := New(Config{Vault: v})
	require.NoError(t, err)

	_, err = p.EnsureToken(context.Background())
	assert.Error(t, err)
}

func TestEnsureTokenRefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "rt-1", r.FormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-access",
			"expires_in":   3600,
			"token_type":   "Bearer",
			"scope":        "profile",
		})
	}))
	defer server.Close()

	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{
		AccessToken:  "stale-token",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-1 * time.Minute),
	})

	p, err := New(Config{Vault: v, TokenEndpoint: server.URL})
	require.NoError(t, err)

	st, err := p.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", st.AccessToken)
	assert.Equal(t, "rt-1", st.RefreshToken)
}

func TestRefreshIfDueRecordsFailureAndBackOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{
		AccessToken:  "stale-token",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-1 * time.Minute),
	})

	recorder := &fakeRecorder{}
	p, err := New(Config{Vault: v, TokenEndpoint: server.URL, Recorder: recorder})
	require.NoError(t, err)

	err = p.RefreshIfDue(context.Background())
	assert.Error(t, err)
	assert.NotEmpty(t, p.LastFailure())
	require.Len(t, recorder.events, 1)
	assert.Equal(t, "refresh_error", recorder.events[0].name)
}

func TestRefreshIfDueSkipsWhenNotYetDue(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "x", "expires_in": 3600})
	}))
	defer server.Close()

	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{
		AccessToken:  "still-valid",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	})

	p, err := New(Config{Vault: v, TokenEndpoint: server.URL})
	require.NoError(t, err)
	future := time.Now().Add(1 * time.Hour)
	p.nextRefresh = future

	require.NoError(t, p.RefreshIfDue(context.Background()))
	assert.Equal(t, 0, calls)
}

func TestSignOutClearsStoredToken(t *testing.T) {
	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{AccessToken: "a", ExpiresAt: time.Now().Add(1 * time.Hour)})

	p, err := New(Config{Vault: v})
	require.NoError(t, err)
	require.NoError(t, p.SignOut())

	_, err = p.EnsureToken(context.Background())
	assert.Error(t, err)
}

func TestKeepaliveFetchesIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer still-valid", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Identity{Email: "person@example.com"})
	}))
	defer server.Close()

	v := vault.NewWithBackend("test", vault.NewMemoryBackend())
	seedToken(t, v, StoredToken{AccessToken: "still-valid", ExpiresAt: time.Now().Add(1 * time.Hour)})

	p, err := New(Config{Vault: v, UserinfoEndpoint: server.URL})
	require.NoError(t, err)

	identity, err := p.Keepalive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", identity.Email)
}

func TestSanitizeRedactsLongIdentifiers(t *testing.T) {
	msg := "failed to fetch file 1A2b3C4d5E6f7G8h9I0jklmnop from drive"
	assert.NotContains(t, sanitize(msg), "1A2b3C4d5E6f7G8h9I0jklmnop")
}
