package pdftext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Extractor pulls plain text out of PDF bytes, one string per page. Layout
// reconstruction is out of scope; downstream chunking only needs the visible
// text in page order.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractPages returns the text of every page in order. Pages without
// extractable text (scans, pure images) come back as empty strings so page
// numbering stays aligned with the source document.
func (e *Extractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf payload")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
