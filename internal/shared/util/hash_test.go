package util

import "testing"

func TestHashKeyStableHex(t *testing.T) {
	got := HashKey("c1", "Q2FY26", "company:c1:v1", "company:c1")
	if got != HashKey("c1", "Q2FY26", "company:c1:v1", "company:c1") {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestHashKeySeparatesParts(t *testing.T) {
	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Fatalf("expected part boundaries to affect the hash")
	}
}

func TestSanitizeFileNameFromHashTests(t *testing.T) {
	if _, err := SanitizeFileName("../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	got, err := SanitizeFileName(" infy/q2.pdf ")
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if got != "infy_q2.pdf" {
		t.Fatalf("unexpected name %q", got)
	}
}
