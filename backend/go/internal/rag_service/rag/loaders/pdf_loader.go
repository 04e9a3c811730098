package loaders

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction wraps every failure to read text out of a PDF.
var ErrExtraction = errors.New("pdf extraction failed")

// PdfLoader implements the Loader interface for PDF bytes.
type PdfLoader struct{}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader() *PdfLoader {
	return &PdfLoader{}
}

// Load parses data as a PDF and returns the plain text of each page in order.
// Pages without a content object are skipped. The parser panics on some malformed
// inputs; those panics are reported as ErrExtraction.
func (l *PdfLoader) Load(ctx context.Context, data []byte) (pages []schema.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	numPages := reader.NumPage()
	pages = make([]schema.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		pages = append(pages, schema.Page{Number: i, Text: text})
	}
	return pages, nil
}

// compile-time check to ensure PdfLoader implements the Loader interface
var _ interfaces.Loader = (*PdfLoader)(nil)
