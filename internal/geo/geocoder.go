package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
	"github.com/xxxsen/bizdir/internal/ratelimit"
)

// Place is a geocoding result in either direction.
type Place struct {
	Address string
	Lat     float64
	Lng     float64
	City    string
	Country string
}

// Geocoder talks to a Nominatim-style HTTP endpoint. The upstream allows
// one request per second, so every remote call goes through the limiter;
// resolved places are cached to keep repeat queries local.
type Geocoder struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
	cache   *expirable.LRU[string, Place]
}

func NewGeocoder(baseURL string, limiter *ratelimit.Limiter) *Geocoder {
	return &Geocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		cache:   expirable.NewLRU[string, Place](2048, nil, 24*time.Hour),
	}
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		City        string `json:"city"`
		Town        string `json:"town"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (g *Geocoder) Forward(ctx context.Context, address string) (*Place, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(address))
	if cached, ok := g.cache.Get(key); ok {
		return &cached, nil
	}
	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")
	query.Set("addressdetails", "1")
	var results []nominatimResult
	if err := g.fetch(ctx, "/search?"+query.Encode(), &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, appErr.ErrNotFound
	}
	place, err := toPlace(&results[0])
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, *place)
	return place, nil
}

func (g *Geocoder) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	key := fmt.Sprintf("rev:%.4f:%.4f", lat, lng)
	if cached, ok := g.cache.Get(key); ok {
		return &cached, nil
	}
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	query.Set("format", "json")
	query.Set("addressdetails", "1")
	var result nominatimResult
	if err := g.fetch(ctx, "/reverse?"+query.Encode(), &result); err != nil {
		return nil, err
	}
	if result.DisplayName == "" {
		return nil, appErr.ErrNotFound
	}
	place, err := toPlace(&result)
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, *place)
	return place, nil
}

func (g *Geocoder) fetch(ctx context.Context, path string, dst interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "bizdir/1.0")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("geocode request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func toPlace(r *nominatimResult) (*Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse geocode lat: %w", err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse geocode lon: %w", err)
	}
	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	return &Place{
		Address: r.DisplayName,
		Lat:     lat,
		Lng:     lng,
		City:    city,
		Country: strings.ToUpper(r.Address.CountryCode),
	}, nil
}
