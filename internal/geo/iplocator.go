package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

// IPPlace is a coarse IP-derived location. Accuracy is city-level at best;
// the resolver only uses it as the last tier.
type IPPlace struct {
	Lat         float64
	Lng         float64
	City        string
	CountryCode string
}

// IPLocator queries an ip-api-style JSON endpoint.
type IPLocator struct {
	baseURL string
	client  *http.Client
}

func NewIPLocator(baseURL string) *IPLocator {
	return &IPLocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type ipAPIResult struct {
	Status      string  `json:"status"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	City        string  `json:"city"`
	CountryCode string  `json:"countryCode"`
}

func (l *IPLocator) Locate(ctx context.Context, ip string) (*IPPlace, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, appErr.ErrNotFound
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/json/"+ip, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("ip lookup failed: %s", resp.Status)
	}
	var result ipAPIResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Status != "success" {
		return nil, appErr.ErrNotFound
	}
	return &IPPlace{
		Lat:         result.Lat,
		Lng:         result.Lon,
		City:        result.City,
		CountryCode: strings.ToUpper(result.CountryCode),
	}, nil
}
