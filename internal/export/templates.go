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

var transcriptTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/transcript.html")
	if err != nil {
		// Fallback to built-in template if file not found
		transcriptTemplate = template.Must(template.New("transcript").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	transcriptTemplate = template.Must(template.New("transcript").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for transcript template rendering
type TemplateData struct {
	SessionName  string
	WorkspaceID  string
	Host         string
	StartedAt    time.Time
	EndedAt      time.Time
	Edits        int
	ConflictsRun int
	Participants []TemplateParticipant
	Operations   []TemplateOperation
	Comments     []TemplateComment
	Conflicts    []TemplateConflict
}

// TemplateParticipant holds participant data for the template
type TemplateParticipant struct {
	Name string
	Role string
}

// TemplateOperation holds one logged edit for the template
type TemplateOperation struct {
	Author     string
	FileID     string
	Kind       string
	Line       int
	Column     int
	Text       string
	Superseded bool
	At         time.Time
}

// TemplateComment holds comment data for the template
type TemplateComment struct {
	Author   string
	FileID   string
	Line     int
	Body     string
	Kind     string
	Status   string
	Priority string
	Replies  []TemplateReply
}

// TemplateReply holds reply data for the template
type TemplateReply struct {
	Author string
	Body   string
}

// TemplateConflict holds conflict data for the template
type TemplateConflict struct {
	FileID        string
	Status        string
	Strategy      string
	ResolvedBy    string
	Justification string
}

// RenderTranscriptHTML renders the transcript template with provided data
func RenderTranscriptHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.SessionName}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.SessionName}}</h1>
  <div class="meta">{{.Host}} | {{.EndedAt.Format "Jan 2, 2006"}}</div>
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="comment">{{.Body}}</div>{{end}}
  {{end}}
</body>
</html>`
