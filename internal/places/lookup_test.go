// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticLookupIsDeterministic(t *testing.T) {
	q := Query{Title: "Blue Bottle", Latitude: 37.774, Longitude: -122.419}
	p1, err := SyntheticLookup{}.Resolve(context.Background(), q)
	require.NoError(t, err)
	p2, err := SyntheticLookup{}.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, p1.PlaceID, p2.PlaceID)
}

func TestGoogleLookupParsesFirstResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"places":[{"id":"place-1","displayName":{"text":"Blue Bottle"},"formattedAddress":"123 Main St","location":{"latitude":37.774,"longitude":-122.419},"types":["cafe"]}]}`))
	}))
	defer server.Close()

	lookup := NewGoogleLookup(LookupConfig{BaseURL: server.URL, APIKey: "test-key"})
	place, err := lookup.Resolve(context.Background(), Query{Title: "Blue Bottle", Latitude: 37.774, Longitude: -122.419})
	require.NoError(t, err)
	assert.Equal(t, "place-1", place.PlaceID)
	assert.Equal(t, "Blue Bottle", place.Name)
}

func TestGoogleLookupClassifiesInvalidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	lookup := NewGoogleLookup(LookupConfig{BaseURL: server.URL, APIKey: "bad-key"})
	_, err := lookup.Resolve(context.Background(), Query{Title: "X"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGoogleLookupClassifiesQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	lookup := NewGoogleLookup(LookupConfig{BaseURL: server.URL, APIKey: "k"})
	_, err := lookup.Resolve(context.Background(), Query{Title: "X"})
	assert.ErrorIs(t, err, ErrQuota)
}
