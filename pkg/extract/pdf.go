package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction marks documents whose text could not be recovered.
var ErrExtraction = errors.New("extraction error")

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PDFExtractor extracts text with pdftotext when the binary is present and
// falls back to the pure Go parser otherwise.
type PDFExtractor struct {
	// Pdftotext is the binary name or path. Empty means "pdftotext"; "-"
	// disables the external tool.
	Pdftotext string
}

// NewPDFExtractor returns an extractor using the default pdftotext lookup.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns the normalized text of every page joined by newlines.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrExtraction)
	}
	if text, err := e.extractWithPdftotext(ctx, data); err == nil && text != "" {
		return text, nil
	}
	text, err := extractWithGoLib(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return text, nil
}

func (e *PDFExtractor) extractWithPdftotext(ctx context.Context, data []byte) (string, error) {
	bin := strings.TrimSpace(e.Pdftotext)
	if bin == "-" {
		return "", errors.New("pdftotext disabled")
	}
	if bin == "" {
		bin = "pdftotext"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("pdftotext not found: %w", err)
	}

	tmp, err := os.CreateTemp("", "esol-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return Normalize(string(output)), nil
}

func extractWithGoLib(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if pageText = Normalize(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}
	if len(pages) == 0 {
		return "", errors.New("no text extracted from PDF")
	}
	return strings.Join(pages, "\n"), nil
}

// Normalize converts line endings to LF and drops NUL bytes and invalid UTF-8.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ToValidUTF8(text, "")
	return strings.TrimSpace(text)
}

// LooksLikePDF reports whether data starts with the PDF magic bytes.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}
