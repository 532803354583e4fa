package application

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// mentionPattern matches @login where the @ is not part of a word, path or
// email address. GitHub logins are alphanumerics and single hyphens.
var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_/@.\-])@([A-Za-z0-9](?:[A-Za-z0-9-]{0,38}))`)

// mentionParser parses plain CommonMark; autolinking extensions would split
// text nodes without adding mentions.
var mentionParser = goldmark.New().Parser()

// ExtractMentions returns the lower-cased logins mentioned in a Markdown body,
// in first-seen order. Mentions inside code spans, code blocks and quoted
// replies are ignored, as are team mentions (@org/team).
func ExtractMentions(body string) []string {
	if !strings.Contains(body, "@") {
		return nil
	}

	src := []byte(body)
	doc := mentionParser.Parse(text.NewReader(src))

	var buf strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.CodeSpan, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Blockquote:
			if entering {
				buf.WriteByte(' ')
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		default:
			if n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	plain := buf.String()
	var logins []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(plain, -1) {
		login := plain[m[2]:m[3]]
		if m[3] < len(plain) && plain[m[3]] == '/' {
			continue
		}
		login = strings.TrimRight(login, "-")
		key := strings.ToLower(login)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		logins = append(logins, key)
	}
	return logins
}
