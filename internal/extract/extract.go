// Package extract turns statement files into candidate transactions.
//
// Extraction output is untrusted: every record still goes through the
// ingestion validation path.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"fintrack/internal/core"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Source is one uploaded or discovered statement file.
type Source struct {
	Name string
	Data []byte
}

// Format guesses the file type from its extension, then its magic bytes.
func (s Source) Format() (Format, error) {
	switch strings.ToLower(filepath.Ext(s.Name)) {
	case ".pdf":
		return FormatPDF, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	trimmed := strings.TrimSpace(string(firstBytes(s.Data, 8)))
	switch {
	case strings.HasPrefix(trimmed, "%PDF"):
		return FormatPDF, nil
	case strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{"):
		return FormatJSON, nil
	case strings.HasPrefix(trimmed, "PK"):
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.Name)
}

func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

// Extractor produces candidate records for userID from src.
type Extractor interface {
	Extract(ctx context.Context, userID string, src Source) ([]core.Transaction, error)
}

// Auto dispatches to the PDF, spreadsheet or JSON extractor by file format.
type Auto struct {
	PDF  Extractor
	XLSX Extractor
	JSON Extractor
}

// NewAuto wires the default PDF pipeline, spreadsheet reader and JSON decoder.
func NewAuto() *Auto {
	classifier := NewClassifier()
	return &Auto{
		PDF:  NewPDFExtractor(NewLineParser(), classifier),
		XLSX: NewXLSXExtractor(classifier),
		JSON: JSONDecoder{Classifier: classifier},
	}
}

func (a *Auto) Extract(ctx context.Context, userID string, src Source) ([]core.Transaction, error) {
	format, err := src.Format()
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatPDF:
		return a.PDF.Extract(ctx, userID, src)
	case FormatXLSX:
		return a.XLSX.Extract(ctx, userID, src)
	default:
		return a.JSON.Extract(ctx, userID, src)
	}
}
