package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/ledongthuc/pdf"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/storage/object"
)

const (
	mimePDF      = "application/pdf"
	mimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePlain    = "text/plain"
	extractedExt = ".extracted.txt"
)

// ErrUnsupported marks documents whose format cannot be turned into text.
var ErrUnsupported = errors.Mark(errors.New("unsupported transcript format"), apperr.ErrPermanent)

// Text returns the plain text of a stored transcript document. The first
// extraction is cached next to the document as <key>.extracted.txt.
func Text(ctx context.Context, store object.Store, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if cached, err := readAll(ctx, store, key+extractedExt); err == nil {
		return string(cached), nil
	}

	raw, err := readAll(ctx, store, key)
	if err != nil {
		return "", errors.Wrapf(err, "open transcript key=%s", key)
	}

	text, err := FromBytes(ctx, raw, "", key)
	if err != nil {
		return "", errors.Wrapf(err, "extract transcript key=%s", key)
	}

	if _, err := store.SaveWithKey(ctx, key+extractedExt, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", errors.Wrapf(err, "cache extracted text key=%s", key)
	}
	return text, nil
}

func readAll(ctx context.Context, store object.Store, key string) ([]byte, error) {
	body, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// FromBytes extracts text from an in-memory payload. An empty mimeType is sniffed.
func FromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	var (
		text string
		err  error
	)
	switch normalized {
	case mimePDF:
		text, err = extractPDF(data)
	case mimeDOCX:
		text, err = extractDOCX(data)
	case mimePlain:
		if !utf8.Valid(data) {
			return "", errors.Wrap(ErrUnsupported, "text is not valid utf-8")
		}
		text = string(data)
	default:
		return "", errors.Wrapf(ErrUnsupported, "mime type %s", normalized)
	}
	if err != nil {
		return "", errors.Mark(err, apperr.ErrPermanent)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Wrap(ErrUnsupported, "document has no text")
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean == "" {
		clean = strings.ToLower(strings.TrimSpace(strings.Split(http.DetectContentType(data), ";")[0]))
	}
	switch clean {
	case "application/zip":
		if isDOCX(data) || strings.EqualFold(filepath.Ext(fileName), ".docx") {
			return mimeDOCX
		}
		return clean
	case "text/markdown", "text/x-markdown":
		return mimePlain
	case "application/octet-stream":
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".txt", ".md":
			return mimePlain
		case ".pdf":
			return mimePDF
		}
	}
	return clean
}

func isDOCX(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
