// Package render implements C7's template and PDF rendering steps.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
)

// defaultTemplate mirrors the original implementation's inline fallback
// template: a titled table with a footer, styled for print.
const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{ .ReportName }}</title>
  <style>
    body { font-family: Arial, sans-serif; margin: 40px; }
    h1 { color: #1976D2; }
    table { border-collapse: collapse; width: 100%; margin-top: 20px; }
    th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
    th { background-color: #1976D2; color: white; }
    tr:nth-child(even) { background-color: #f9f9f9; }
    .footer { margin-top: 40px; color: #666; font-size: 12px; }
  </style>
</head>
<body>
  <h1>{{ .ReportName }}</h1>
  <p><strong>Generated:</strong> {{ .Data.generated_at }}</p>
  <table>
    <thead>
      <tr><th>Label</th><th>Quantity</th><th>Revenue</th></tr>
    </thead>
    <tbody>
      {{ range .Data.rows }}
      <tr><td>{{ .label }}</td><td>{{ .quantity }}</td><td>${{ .revenue }}</td></tr>
      {{ end }}
    </tbody>
    <tfoot>
      <tr><th>Total</th><th>{{ .Data.total_quantity }}</th><th>${{ .Data.total_revenue }}</th></tr>
    </tfoot>
  </table>
  <div class="footer">
    <p>This report was automatically generated.</p>
  </div>
</body>
</html>`

// Templates is a registry of named templates keyed by template_ref, with a
// built-in default for report definitions that don't reference a custom
// one. Loading custom templates from blob storage is the natural extension
// point, per the original's "TODO: fetch template from blob storage" note.
type Templates struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

func New() *Templates {
	t := &Templates{templates: make(map[string]*template.Template)}
	t.templates[""] = template.Must(template.New("default").Parse(defaultTemplate))
	return t
}

// Register adds or replaces a named template's source.
func (t *Templates) Register(ref, source string) error {
	parsed, err := template.New(ref).Parse(source)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", ref, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.templates[ref] = parsed
	return nil
}

type templateData struct {
	ReportName string
	Data       map[string]any
}

// Render implements pipeline.TemplateRenderer.
func (t *Templates) Render(ctx context.Context, templateRef, reportName string, data map[string]any) ([]byte, error) {
	t.mu.RLock()
	tmpl, ok := t.templates[templateRef]
	if !ok {
		tmpl = t.templates[""]
	}
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{ReportName: reportName, Data: data}); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", templateRef, err)
	}
	return buf.Bytes(), nil
}
