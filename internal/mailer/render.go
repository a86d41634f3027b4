package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

// Rendered is a message ready for delivery.
type Rendered struct {
	To      string
	Subject string
	Body    string
}

// Renderer executes the embedded subject and body templates.
type Renderer struct {
	siteRoot  string
	siteTitle string
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(siteRoot, siteTitle string) (*Renderer, error) {
	tmpl, errParse := template.ParseFS(templateFS, "templates/*.txt")
	if errParse != nil {
		return nil, fmt.Errorf("mailer: parse templates: %w", errParse)
	}
	return &Renderer{
		siteRoot:  strings.TrimRight(strings.TrimSpace(siteRoot), "/"),
		siteTitle: strings.TrimSpace(siteTitle),
		templates: tmpl,
	}, nil
}

// Render produces the subject and body for ev. The site root and title are
// added to the template context.
func (r *Renderer) Render(ev Event) (Rendered, error) {
	if r == nil || r.templates == nil {
		return Rendered{}, fmt.Errorf("mailer: renderer not initialized")
	}
	data := make(map[string]any, len(ev.Context)+2)
	for k, v := range ev.Context {
		data[k] = v
	}
	data["site_root"] = r.siteRoot
	data["site_title"] = r.siteTitle

	subject, errSubject := r.execute(string(ev.Template)+"_subject.txt", data)
	if errSubject != nil {
		return Rendered{}, errSubject
	}
	body, errBody := r.execute(string(ev.Template)+".txt", data)
	if errBody != nil {
		return Rendered{}, errBody
	}
	// Subjects are single line.
	subject = strings.Join(strings.Fields(subject), " ")
	return Rendered{To: ev.Recipient, Subject: subject, Body: strings.TrimSpace(body) + "\n"}, nil
}

func (r *Renderer) execute(name string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if errExec := r.templates.ExecuteTemplate(&buf, name, data); errExec != nil {
		return "", fmt.Errorf("mailer: render %s: %w", name, errExec)
	}
	return buf.String(), nil
}
