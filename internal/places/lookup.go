// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/weixin07/listcompare/internal/apperr"
)

const defaultFindPlaceBase = "https://places.googleapis.com/v1/places:searchText"

// GoogleLookup resolves a Query against the Places API Text Search
// endpoint. It is the remote tier's production implementation of
// Lookup.
type GoogleLookup struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// LookupConfig configures a GoogleLookup.
type LookupConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
}

// NewGoogleLookup constructs a GoogleLookup. cfg.Timeout defaults to 10s.
func NewGoogleLookup(cfg LookupConfig) *GoogleLookup {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultFindPlaceBase
	}
	return &GoogleLookup{httpClient: client, baseURL: base, apiKey: cfg.APIKey}
}

type searchTextRequest struct {
	TextQuery      string        `json:"textQuery"`
	LocationBias   *locationBias `json:"locationBias,omitempty"`
	MaxResultCount int           `json:"maxResultCount"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchTextResponse struct {
	Places []struct {
		ID          string `json:"id"`
		PlaceID     string `json:"placeId"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string   `json:"formattedAddress"`
		Location         latLng   `json:"location"`
		Types            []string `json:"types"`
	} `json:"places"`
}

// Resolve implements Lookup.
func (g *GoogleLookup) Resolve(ctx context.Context, q Query) (*Place, error) {
	body, err := json.Marshal(searchTextRequest{
		TextQuery: q.Title,
		LocationBias: &locationBias{Circle: circle{
			Center: latLng{Latitude: q.Latitude, Longitude: q.Longitude},
			Radius: 500,
		}},
		MaxResultCount: 1,
	})
	if err != nil {
		return nil, apperr.JSON(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.HTTP(apperr.HTTPClassOther, 0, g.host(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", g.apiKey)
	req.Header.Set("X-Goog-FieldMask", "places.id,places.placeId,places.displayName,places.formattedAddress,places.location,places.types")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyLookupTransportError(err, g.host())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidKey, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: status %d", ErrQuota, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.HTTP(apperr.HTTPClassOther, resp.StatusCode, g.host(), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed searchTextResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.JSON(err)
	}
	if len(parsed.Places) == 0 {
		return nil, fmt.Errorf("%w: no places matched %q", errNoResult, q.Title)
	}

	p := parsed.Places[0]
	placeID := p.ID
	if placeID == "" {
		placeID = p.PlaceID
	}
	return &Place{
		PlaceID:          placeID,
		Name:             p.DisplayName.Text,
		FormattedAddress: p.FormattedAddress,
		Lat:              p.Location.Latitude,
		Lng:              p.Location.Longitude,
		Types:            p.Types,
	}, nil
}

func (g *GoogleLookup) host() string {
	if u, err := url.Parse(g.baseURL); err == nil {
		return u.Host
	}
	return g.baseURL
}

var errNoResult = errors.New("no matching place")

func classifyLookupTransportError(err error, host string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.HTTP(apperr.HTTPClassTimeout, 0, host, err)
	}
	return apperr.HTTP(apperr.HTTPClassConnect, 0, host, err)
}

// SyntheticLookup is a deterministic, network-free Lookup used for
// hermetic tests and offline demos: it derives a stable place_id from
// the query's title and rounded coordinates rather than calling out.
type SyntheticLookup struct{}

// Resolve implements Lookup without any network access.
func (SyntheticLookup) Resolve(ctx context.Context, q Query) (*Place, error) {
	id := fmt.Sprintf("synthetic:%s:%.6f,%.6f", q.Title, q.Latitude, q.Longitude)
	return &Place{
		PlaceID:          id,
		Name:             q.Title,
		FormattedAddress: "",
		Lat:              q.Latitude,
		Lng:              q.Longitude,
		Types:            nil,
	}, nil
}
