package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Geocoder resolves raw address text to coordinates. Failures are expected
// and degrade to storing the raw text without coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, in AddressInput) (lat, lon *float64, err error)
}

// NopGeocoder never resolves coordinates; used when no geocoding service is
// configured.
type NopGeocoder struct{}

func (NopGeocoder) Geocode(context.Context, AddressInput) (*float64, *float64, error) {
	return nil, nil, nil
}

// HTTPGeocoder calls an external resolver exposing
// GET /geocode?q=<street, city>.
type HTTPGeocoder struct {
	HTTP    *http.Client
	BaseURL string
}

func NewHTTPGeocoder(baseURL string) *HTTPGeocoder {
	return &HTTPGeocoder{
		HTTP:    &http.Client{Timeout: 3 * time.Second},
		BaseURL: baseURL,
	}
}

func (g *HTTPGeocoder) Geocode(ctx context.Context, in AddressInput) (*float64, *float64, error) {
	q := in.Street
	if in.City != "" {
		q += ", " + in.City
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/geocode?q=%s", g.BaseURL, url.QueryEscape(q)), nil)
	res, err := g.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("geocoder status %s", res.Status)
	}
	var body struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, nil, err
	}
	return &body.Latitude, &body.Longitude, nil
}
