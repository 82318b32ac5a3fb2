package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var TemplatesFS embed.FS

// PodsPage is the name of the rendered pod table template.
const PodsPage = "pods.html"

func ParseTemplates() (*template.Template, error) {
	return template.ParseFS(TemplatesFS, "templates/*.html")
}
