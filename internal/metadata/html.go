package metadata

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlTagPattern detects the tags providers use in descriptions.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// descriptionMarkdown converts an HTML description to Markdown. Plain text is returned trimmed.
func descriptionMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}

	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}
