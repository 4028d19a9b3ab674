// ABOUTME: Tests for the markup renderers

package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdown_RendersHTML(t *testing.T) {
	r := NewMarkdown()

	out := r.Render("**bold** and `code`")
	assert.Equal(t, "**bold** and `code`", out.Plain)
	assert.Contains(t, out.Formatted, "<strong>bold</strong>")
	assert.Contains(t, out.Formatted, "<code>code</code>")
}

func TestMarkdown_CodeFence(t *testing.T) {
	r := NewMarkdown()

	out := r.Render("```go\nfmt.Println(1)\n```")
	assert.Contains(t, out.Formatted, "<pre>")
}

func TestPassthrough(t *testing.T) {
	out := Passthrough{}.Render("# raw")
	assert.Equal(t, "# raw", out.Plain)
	assert.Empty(t, out.Formatted)
}
