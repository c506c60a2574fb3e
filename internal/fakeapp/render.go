package fakeapp

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed templates static
var assets embed.FS

// Renderer executes page templates, each combined with one of the two layouts.
type Renderer struct {
	templates map[string]*template.Template
}

// layouts maps a page directory to the layout that wraps it. Pages at the
// top level use the signed-in chrome.
var layouts = map[string]string{
	"":     "base.html",
	"mail": "base_public.html",
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	err := fs.WalkDir(assets, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(path, "templates/")
		if d.IsDir() || !strings.HasSuffix(name, ".html") || strings.HasPrefix(name, "base") {
			return nil
		}
		dir := ""
		if i := strings.LastIndex(name, "/"); i >= 0 {
			dir = name[:i]
		}
		layout := layouts[dir]
		if name == "login.html" {
			layout = "base_public.html"
		}
		tmpl, err := template.ParseFS(assets, "templates/"+layout, path)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return r, nil
}

// Render executes templateName inside its layout.
func (r *Renderer) Render(w http.ResponseWriter, templateName string, data any) error {
	tmpl, ok := r.templates[templateName]
	if !ok {
		return fmt.Errorf("template %q not found", templateName)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", templateName, err)
	}
	return nil
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
