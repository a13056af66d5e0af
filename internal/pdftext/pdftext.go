// Package pdftext extracts plain text from PDF files so document content
// can be attached to a chat turn. It is a stateless converter with fixed
// input gates; it never touches the conversation log.
package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxInputBytes is the largest PDF accepted for extraction.
const MaxInputBytes = 10 * 1024 * 1024

// ErrNotPDF is returned for files that are not PDFs.
var ErrNotPDF = errors.New("pdftext: not a PDF file")

// ErrTooLarge is returned for files over MaxInputBytes.
var ErrTooLarge = errors.New("pdftext: file too large")

// ErrNoText is returned when a PDF yields no extractable text, typically an
// image-based or encrypted document.
var ErrNoText = errors.New("pdftext: no extractable text")

// Extract returns the plain text of the PDF at path.
func Extract(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", ErrNotPDF
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("pdftext: stat: %w", err)
	}
	if info.Size() > MaxInputBytes {
		return "", ErrTooLarge
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdftext: open: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdftext: extract: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("pdftext: read: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
