package util

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
)

func TestSanitizeFileName(t *testing.T) {
	got, err := SanitizeFileName("  q2/infy\\call.pdf ")
	if err != nil || got != "q2_infy_call.pdf" {
		t.Fatalf("got %q %v", got, err)
	}

	for _, bad := range []string{"../etc/passwd", "   ", "call\x00.pdf"} {
		if _, err := SanitizeFileName(bad); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", bad, err)
		}
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got, err = SanitizeFileName(long)
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if len([]rune(got)) != maxFileNameLen || !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("long name not shortened: %d %q", len(got), got[len(got)-8:])
	}
}
