package httphandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{name: "plain text", input: "hello world", contains: []string{"hello world"}},
		{name: "bold", input: "**bold text**", contains: []string{"<strong>bold text</strong>"}},
		{name: "inline code", input: "use `fmt.Println`", contains: []string{"<code>fmt.Println</code>"}},
		{
			name:     "link",
			input:    "[click](https://example.com)",
			contains: []string{`<a href="https://example.com"`, "click</a>"},
		},
		{name: "strikethrough", input: "~~deleted~~", contains: []string{"<del>deleted</del>"}},
		{name: "task list", input: "- [x] done\n- [ ] todo", contains: []string{"<li>", "done", "todo"}},
		{name: "mention stays text", input: "ping @octocat", contains: []string{"@octocat"}},
		{name: "script stripped", input: `<script>alert("xss")</script>`, absent: []string{"<script>"}},
		{
			name:   "event handler stripped",
			input:  `<img src="x.png" onerror="alert(1)">`,
			absent: []string{"onerror"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderMarkdown(tt.input)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestRenderMarkdown_EmptyInput(t *testing.T) {
	assert.Equal(t, "", renderMarkdown(""))
}
