package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown converts service provided markdown to HTML
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates converter. If unsafeHTML is true raw HTML
// from the markdown source is passed to the output as is,
// otherwise it is dropped
func NewMarkdown(unsafeHTML bool) *Markdown {
	var opts []goldmark.Option
	opts = append(opts, goldmark.WithExtensions(extension.GFM))
	if unsafeHTML {
		opts = append(opts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}
	return &Markdown{md: goldmark.New(opts...)}
}

// Render returns HTML for the markdown string
func (m *Markdown) Render(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(s), &buf); err != nil {
		return "", fmt.Errorf("can't convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
