package documents

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnreadablePDF = errors.New("file is not a readable PDF")
	ErrNoText        = errors.New("PDF contains no extractable text")
)

// Extracted is the plain text of a PDF.
type Extracted struct {
	Text      string
	PageCount int
}

// ExtractPDF returns the text of every page, separated by newlines.
func ExtractPDF(content []byte) (*Extracted, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	var buf strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadablePDF, i, err)
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}

	out := strings.TrimSpace(buf.String())
	if out == "" {
		return nil, ErrNoText
	}
	return &Extracted{Text: out, PageCount: pages}, nil
}
