package registry

import (
	"strings"
	"time"

	"transcript-backend/internal/shared/apperr"
)

// MaxSearchResults caps company search results.
const MaxSearchResults = 20

// Kind distinguishes user-curated watchlists from sector groupings.
type Kind string

const (
	KindWatchlist Kind = "watchlist"
	KindSector    Kind = "sector"
)

// ParseKind accepts the canonical names plus the NORMAL/SECTOR aliases used by importers.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "watchlist", "normal", "":
		return KindWatchlist, nil
	case "sector":
		return KindSector, nil
	default:
		return "", apperr.Validationf("unknown group kind %q", raw)
	}
}

// Company is a tracked issuer.
type Company struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"orgId"`
	Name       string    `json:"name"`
	Ticker     string    `json:"ticker"`
	ISIN       string    `json:"isin"`
	AutoEmail  bool      `json:"autoEmail"`
	Recipients []string  `json:"recipients"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Group is a named, ordered collection of companies.
type Group struct {
	ID                 string    `json:"id"`
	OrgID              string    `json:"orgId"`
	Kind               Kind      `json:"kind"`
	Name               string    `json:"name"`
	Members            []string  `json:"members"`
	AutoEmail          bool      `json:"autoEmail"`
	Recipients         []string  `json:"recipients"`
	RequireAllReported bool      `json:"requireAllReported"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Gated reports whether a group run waits for every member to report.
// Only watchlists honor RequireAllReported.
func (g Group) Gated() bool {
	return g.Kind == KindWatchlist && g.RequireAllReported
}

// HasMember reports whether companyID is a current member.
func (g Group) HasMember(companyID string) bool {
	for _, m := range g.Members {
		if m == companyID {
			return true
		}
	}
	return false
}
