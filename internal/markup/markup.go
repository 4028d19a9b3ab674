// ABOUTME: Pure text-transform boundary between backend output and the platform
// ABOUTME: Keeps platform markup conversion swappable and unit-testable

package markup

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

// Renderer converts backend Markdown output into what a platform posts.
// Rendered.Plain is always set; Rendered.Formatted is platform markup (HTML
// for Matrix) and may be empty for plain-text platforms.
type Renderer interface {
	Render(text string) Rendered
}

// Rendered is the outcome of a markup transformation.
type Rendered struct {
	Plain     string
	Formatted string
}

// Markdown renders Markdown to HTML via goldmark. Used by the Matrix frontend
// for formatted_body.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a Markdown renderer with goldmark defaults.
func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New()}
}

// Render converts Markdown text to HTML, keeping the original as plain text.
// A conversion failure falls back to plain text only.
func (m *Markdown) Render(text string) Rendered {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return Rendered{Plain: text}
	}
	return Rendered{
		Plain:     text,
		Formatted: strings.TrimSpace(buf.String()),
	}
}

// Passthrough performs no transformation. Used by the console frontend.
type Passthrough struct{}

// Render returns the text unchanged.
func (Passthrough) Render(text string) Rendered {
	return Rendered{Plain: text}
}
