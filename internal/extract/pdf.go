package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads the text layer of a statement and parses it line by line.
type PDFExtractor struct {
	parser     *LineParser
	classifier *Classifier
}

func NewPDFExtractor(parser *LineParser, classifier *Classifier) *PDFExtractor {
	return &PDFExtractor{parser: parser, classifier: classifier}
}

func (e *PDFExtractor) Extract(ctx context.Context, userID string, src Source) ([]core.Transaction, error) {
	lines, err := PDFLines(ctx, src.Data)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", src.Name, err)
	}
	txs := e.parser.ParseLines(userID, lines)
	e.classifier.Apply(txs)

	slog.InfoContext(ctx, "PDF parsed",
		"file", src.Name,
		"lines", len(lines),
		"transactions", len(txs))
	return txs, nil
}

// PDFLines returns the plain-text lines of every non-empty page.
func PDFLines(ctx context.Context, data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var lines []string
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", pageIndex, err)
		}
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}
