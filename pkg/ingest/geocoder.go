package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Geocoder resolves a street address to a latitude/longitude pair.
// Implementations are expected to be safe for concurrent use, since
// Rooms geocodes every building in parallel.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

type geoResult struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Error string   `json:"error"`
}

// HTTPGeocoder calls an HTTP geocoding endpoint shaped
// GET <baseURL>/<urlencode(address)> -> {"lat":.., "lon":..} or {"error":".."}.
type HTTPGeocoder struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPGeocoder builds an HTTPGeocoder with a sane default client.
func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{BaseURL: baseURL, Client: &http.Client{}}
}

// Geocode issues the lookup and parses the response. A non-empty
// "error" field in an otherwise-successful response is returned as a
// plain error, not a client-facing CourseDB error: the room ingester
// treats a failed geocode as "skip this building," per spec.md §4.4.
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	reqURL := fmt.Sprintf("%s/%s", g.BaseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("read geocode response: %w", err)
	}

	var result geoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, 0, fmt.Errorf("parse geocode response: %w", err)
	}
	if result.Error != "" {
		return 0, 0, fmt.Errorf("geocode failed: %s", result.Error)
	}
	if result.Lat == nil || result.Lon == nil {
		return 0, 0, fmt.Errorf("geocode response missing lat/lon")
	}
	return *result.Lat, *result.Lon, nil
}
