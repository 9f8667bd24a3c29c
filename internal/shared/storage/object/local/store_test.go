package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	key, size, mime, err := store.Save(ctx, "company-1", "q2fy26.txt", strings.NewReader("Revenue grew 12%."))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != int64(len("Revenue grew 12%.")) {
		t.Fatalf("unexpected size %d", size)
	}
	if !strings.HasPrefix(mime, "text/plain") {
		t.Fatalf("unexpected mime %q", mime)
	}
	if !strings.HasSuffix(key, "_q2fy26.txt") {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "Revenue grew 12%." {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSaveWithKeyOverwrites(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	if _, err := store.SaveWithKey(ctx, "outputs/job-1.md", "text/markdown", strings.NewReader("first")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	if _, err := store.SaveWithKey(ctx, "outputs/job-1.md", "text/markdown", strings.NewReader("second")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}
	rc, err := store.Open(ctx, "outputs/job-1.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "second" {
		t.Fatalf("expected overwrite, got %q", body)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Open(context.Background(), "../secret")
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
