package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JackYouk/esol/pkg/extract/pdftest"
)

func TestExtractGoLib(t *testing.T) {
	data := pdftest.Build("Photosynthesis converts light to energy")
	e := &PDFExtractor{Pdftotext: "-"}
	text, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Photosynthesis converts light to energy") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractDefaultStrategy(t *testing.T) {
	data := pdftest.Build("The cat sat on the mat")
	text, err := NewPDFExtractor().Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "The cat sat on the mat") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	e := &PDFExtractor{Pdftotext: "-"}
	for name, data := range map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("hello world, definitely not a pdf"),
		"truncated": pdftest.Build("cut short")[:40],
	} {
		_, err := e.Extract(context.Background(), data)
		if !errors.Is(err, ErrExtraction) {
			t.Fatalf("%s: expected ErrExtraction, got %v", name, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  line one\r\nline two\rline\x00 three\f\xff ")
	want := "line one\nline two\nline three"
	if got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}

func TestLooksLikePDF(t *testing.T) {
	if !LooksLikePDF(pdftest.Build("x")) {
		t.Fatalf("built pdf should be detected")
	}
	if LooksLikePDF([]byte("PK\x03\x04")) {
		t.Fatalf("zip must not be detected as pdf")
	}
}
