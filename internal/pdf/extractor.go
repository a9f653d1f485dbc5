// Package pdfutil reads text back out of rendered receipts so support staff
// can inspect a stored document from the terminal.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Document is the plain text of a PDF, one entry per page.
type Document struct {
	Pages []string
}

// Text joins every page.
func (d *Document) Text() string {
	return strings.Join(d.Pages, "\n")
}

// Extract parses PDF bytes with ledongthuc/pdf.
func Extract(data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	doc := &Document{}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		doc.Pages = append(doc.Pages, content)
	}
	return doc, nil
}
