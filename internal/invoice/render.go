package invoice

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown renders model output; GFM gives us the line item tables.
// Raw HTML in the model's answer is dropped, not passed through.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdown converts extracted markdown to HTML for the result panel
func renderMarkdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
