package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/storage/object/local"
)

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	body.WriteString("</w:body></w:document>")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFromBytesDOCXFromZipMime(t *testing.T) {
	data := buildDOCX(t, "Operator: Welcome to the Q2 call.", "CEO: Revenue grew 12%.")
	text, err := FromBytes(context.Background(), data, "application/zip", "call.docx")
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !strings.Contains(text, "Revenue grew 12%.") || !strings.Contains(text, "\n") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFromBytesRealZipRejected(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("notes.txt")
	_, _ = w.Write([]byte("hello"))
	_ = zw.Close()

	_, err := FromBytes(context.Background(), buf.Bytes(), "application/zip", "notes.zip")
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !errors.Is(err, apperr.ErrPermanent) {
		t.Fatalf("unsupported documents must be permanent failures")
	}
}

func TestTextCachesExtraction(t *testing.T) {
	store := local.New(t.TempDir())
	ctx := context.Background()
	if _, err := store.SaveWithKey(ctx, "transcripts/infy/q2fy26.txt", "text/plain", strings.NewReader("  Deal wins at record high.  ")); err != nil {
		t.Fatalf("SaveWithKey: %v", err)
	}

	text, err := Text(ctx, store, "transcripts/infy/q2fy26.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "Deal wins at record high." {
		t.Fatalf("unexpected text %q", text)
	}

	rc, err := store.Open(ctx, "transcripts/infy/q2fy26.txt.extracted.txt")
	if err != nil {
		t.Fatalf("expected cached extraction: %v", err)
	}
	defer rc.Close()
	cached, _ := io.ReadAll(rc)
	if string(cached) != text {
		t.Fatalf("cache mismatch %q", cached)
	}
}

func TestTextMissingDocument(t *testing.T) {
	store := local.New(t.TempDir())
	if _, err := Text(context.Background(), store, "transcripts/none.pdf"); err == nil {
		t.Fatalf("expected error for missing document")
	}
}
