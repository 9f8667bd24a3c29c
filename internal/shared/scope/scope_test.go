package scope

import (
	"testing"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

func TestParse(t *testing.T) {
	cases := map[string]Scope{"groups": Group, "Company": Company, " org ": Org}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := Parse("sector"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
