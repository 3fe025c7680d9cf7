package export

import (
	"html"
	"html/template"
	"strings"
)

// bodyToHTML converts a plain-text entry body to HTML. Blank lines delimit
// paragraphs; single newlines become <br>. All text is escaped.
func bodyToHTML(body string) template.HTML {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	blocks := strings.Split(body, "\n\n")

	var result strings.Builder
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		escaped := make([]string, 0, len(lines))
		for _, line := range lines {
			escaped = append(escaped, html.EscapeString(line))
		}
		result.WriteString("<p>")
		result.WriteString(strings.Join(escaped, "<br>"))
		result.WriteString("</p>\n")
	}
	return template.HTML(result.String())
}
