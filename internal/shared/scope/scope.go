// Package scope names the levels a prompt or job can target.
package scope

import (
	"strings"

	"transcript-backend/internal/shared/apperr"
)

// Scope is the level a prompt is attached to and a job targets.
type Scope string

const (
	Org     Scope = "org"
	Group   Scope = "group"
	Company Scope = "company"
)

// Parse accepts singular or plural forms in any case.
func Parse(raw string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "org", "orgs", "organization":
		return Org, nil
	case "group", "groups":
		return Group, nil
	case "company", "companies":
		return Company, nil
	default:
		return "", apperr.Validationf("unknown scope %q", raw)
	}
}

// Rank orders scopes for deterministic sorting: company, group, org.
func (s Scope) Rank() int {
	switch s {
	case Company:
		return 0
	case Group:
		return 1
	default:
		return 2
	}
}
