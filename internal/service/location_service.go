package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/config"
	"github.com/xxxsen/bizdir/internal/geo"
	"github.com/xxxsen/bizdir/internal/model"
)

// profileStaleAfter flags, without blocking, profile locations that have
// not been updated for this long.
const profileStaleAfter = 30 * 24 * time.Hour

var nearMePhrases = []string{
	"near me", "nearby", "close to me", "around me", "in my area", "close by",
}

// Trailing "in <place>" / "near <place>" style suffix. Candidates that turn
// out to be a near-me pronoun are rejected after the match.
var explicitLocationRegex = regexp.MustCompile(`(?i)\b(?:in|near|at|around)\s+([\p{L}0-9][\p{L}0-9 .'-]*)$`)

type GeocodeClient interface {
	Forward(ctx context.Context, address string) (*geo.Place, error)
	Reverse(ctx context.Context, lat, lng float64) (*geo.Place, error)
}

type IPLocateClient interface {
	Locate(ctx context.Context, ip string) (*geo.IPPlace, error)
}

// LocationService resolves the geographic anchor for a search through a
// four-tier priority chain: explicit place in the query, profile location
// behind a near-me phrase, client geolocation, then IP lookup. Every tier
// is validated against the deployment bounding box; out-of-bounds is a
// miss, not an error. A nil, nil return means no anchor could be resolved.
type LocationService struct {
	geocoder GeocodeClient
	ip       IPLocateClient
	cfg      config.GeoConfig
	metros   map[string]struct{}
	now      func() time.Time
}

func NewLocationService(geocoder GeocodeClient, ip IPLocateClient, cfg config.GeoConfig) *LocationService {
	metros := make(map[string]struct{}, len(cfg.MetroCities))
	for _, city := range cfg.MetroCities {
		metros[strings.ToLower(strings.TrimSpace(city))] = struct{}{}
	}
	return &LocationService{
		geocoder: geocoder,
		ip:       ip,
		cfg:      cfg,
		metros:   metros,
		now:      time.Now,
	}
}

func (s *LocationService) Resolve(ctx context.Context, queryText string, profile *model.UserProfile, client model.ClientContext) (*model.LocationResult, error) {
	logger := logutil.GetLogger(ctx)

	// Tier 1: explicit place named in the query.
	if phrase := s.ExtractLocationPhrase(queryText); phrase != "" {
		place, err := s.geocoder.Forward(ctx, phrase)
		if err != nil {
			logger.Warn("geocode explicit location failed, falling through",
				zap.String("phrase", phrase), zap.Error(err))
		} else if s.inBounds(place.Lat, place.Lng) {
			return &model.LocationResult{
				Lat:     place.Lat,
				Lng:     place.Lng,
				Address: place.Address,
				Source:  model.LocationSourceExplicit,
				RadiusM: s.radiusForCity(place.City),
			}, nil
		}
	}

	// Tier 2: near-me phrase anchors to the profile. No usable profile
	// location terminates resolution so the caller can prompt for setup
	// instead of guessing.
	if s.HasNearMePhrase(queryText) {
		loc := profileLocation(profile)
		if loc == nil || !s.inBounds(loc.Lat, loc.Lng) {
			return nil, nil
		}
		stale := loc.Mtime > 0 && s.now().Sub(time.Unix(loc.Mtime, 0)) > profileStaleAfter
		return &model.LocationResult{
			Lat:     loc.Lat,
			Lng:     loc.Lng,
			Address: loc.Address,
			Source:  model.LocationSourceProfile,
			RadiusM: s.radiusForCity(cityFromAddress(loc.Address)),
			IsStale: stale,
		}, nil
	}

	// Tier 3: client-supplied geolocation, reverse-geocoded best-effort.
	if coords := client.Geolocation; coords != nil && s.inBounds(coords.Lat, coords.Lng) {
		address := "Current location"
		city := ""
		if place, err := s.geocoder.Reverse(ctx, coords.Lat, coords.Lng); err != nil {
			logger.Warn("reverse geocode failed, keeping raw coordinates", zap.Error(err))
		} else {
			address = place.Address
			city = place.City
		}
		return &model.LocationResult{
			Lat:     coords.Lat,
			Lng:     coords.Lng,
			Address: address,
			Source:  model.LocationSourceGeolocation,
			RadiusM: s.radiusForCity(city),
		}, nil
	}

	// Tier 4: coarse IP lookup, only within the deployment country.
	if client.IP != "" {
		place, err := s.ip.Locate(ctx, client.IP)
		if err != nil {
			logger.Warn("ip geolocation failed", zap.Error(err))
			return nil, nil
		}
		if place.CountryCode == strings.ToUpper(s.cfg.Country) && s.inBounds(place.Lat, place.Lng) {
			return &model.LocationResult{
				Lat:     place.Lat,
				Lng:     place.Lng,
				Address: place.City,
				Source:  model.LocationSourceIP,
				RadiusM: s.radiusForCity(place.City),
			}, nil
		}
	}
	return nil, nil
}

// HasNearMePhrase reports whether the query implies anchoring to the
// user's own location.
func (s *LocationService) HasNearMePhrase(queryText string) bool {
	q := strings.ToLower(queryText)
	for _, phrase := range nearMePhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return false
}

// ExtractLocationPhrase pulls an explicitly named place out of the query
// text: a trailing comma segment ("pizza, seoul") or an "in/near/at X"
// suffix. Near-me pronouns are not explicit places.
func (s *LocationService) ExtractLocationPhrase(queryText string) string {
	q := strings.TrimSpace(queryText)
	if q == "" || s.HasNearMePhrase(q) {
		return ""
	}
	if idx := strings.LastIndex(q, ","); idx >= 0 {
		if segment := strings.TrimSpace(q[idx+1:]); segment != "" {
			return segment
		}
	}
	m := explicitLocationRegex.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	phrase := strings.TrimSpace(m[1])
	switch strings.ToLower(phrase) {
	case "me", "here", "my area", "town":
		return ""
	}
	return phrase
}

func (s *LocationService) inBounds(lat, lng float64) bool {
	b := s.cfg.Bounds
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// radiusForCity keeps the fixed major-metro heuristic: listed cities get
// the tight urban radius, everything else (unknown included) the wide one.
func (s *LocationService) radiusForCity(city string) int {
	if _, ok := s.metros[strings.ToLower(strings.TrimSpace(city))]; ok {
		return s.cfg.MetroRadiusM
	}
	return s.cfg.DefaultRadiusM
}

func profileLocation(profile *model.UserProfile) *model.ProfileLocation {
	if profile == nil {
		return nil
	}
	return profile.Location
}

func cityFromAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}
