// Package markdown renders assistant output as HTML. Rendering is pure and
// tolerant: malformed input falls back to the original text.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Render converts markdown text to HTML markup. On any conversion failure
// the input is returned unchanged.
func Render(text string) string {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(text), &buf); err != nil {
		return text
	}
	return buf.String()
}
