package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var journalTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/journal.html")
	if err != nil {
		// Fallback to built-in template if file not found
		journalTemplate = template.Must(template.New("journal").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	journalTemplate = template.Must(template.New("journal").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for journal template rendering
type TemplateData struct {
	OwnerName string
	From      time.Time
	To        time.Time
	Entries   []TemplateEntry
}

// TemplateEntry holds one entry for the template
type TemplateEntry struct {
	Date      time.Time
	Title     string
	Mood      string
	MoodScore int
	Tags      []string
	BodyHTML  template.HTML
}

// RenderJournalHTML renders the journal template with provided data
func RenderJournalHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := journalTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Journal</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #2e8b57; padding-bottom: 0.5rem; }
    .entry { margin: 2rem 0; }
    .meta { color: #666; font-size: 0.9em; }
  </style>
</head>
<body>
  <h1>Journal</h1>
  <p class="meta">{{.OwnerName}} | {{.From.Format "Jan 2, 2006"}} to {{.To.Format "Jan 2, 2006"}}</p>
  {{range .Entries}}
  <div class="entry">
    <h2>{{.Date.Format "Monday, January 2, 2006"}}{{if .Title}}: {{.Title}}{{end}}</h2>
    {{if .Mood}}<p class="meta">Mood: {{.Mood}}{{if .MoodScore}} ({{.MoodScore}}/10){{end}}</p>{{end}}
    <div>{{.BodyHTML}}</div>
  </div>
  {{end}}
</body>
</html>`
