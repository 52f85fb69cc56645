package model

const (
	LocationSourceExplicit    = "explicit"
	LocationSourceProfile     = "profile"
	LocationSourceGeolocation = "geolocation"
	LocationSourceIP          = "ip"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ProfileLocation is the user's stored home location. Profile persistence
// itself belongs to the account layer; only the value is consumed here.
type ProfileLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
	Mtime   int64   `json:"mtime"`
}

type UserProfile struct {
	UserID   string           `json:"user_id"`
	Location *ProfileLocation `json:"location,omitempty"`
}

// ClientContext carries per-request hints from the caller: browser
// geolocation coordinates and the client IP.
type ClientContext struct {
	Geolocation *Coordinates `json:"geolocation,omitempty"`
	IP          string       `json:"ip,omitempty"`
}

// LocationResult is the resolved search anchor. Ephemeral, never persisted.
type LocationResult struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
	Source  string  `json:"source"`
	RadiusM int     `json:"radius_m"`
	IsStale bool    `json:"is_stale"`
}
