package report

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.5;
            max-width: 960px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        table { width: 100%; border-collapse: collapse; margin: 1em 0; }
        th, td { border: 1px solid #e0e0e0; padding: 0.4em 0.8em; text-align: left; }
        th { background-color: #f5f5f5; }
        code { font-family: 'SF Mono', Monaco, Consolas, monospace; font-size: 0.9em; }
    </style>
</head>
<body>
    <article>
        {{.Content}}
    </article>
</body>
</html>`

var pageTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// RenderHTML converts report Markdown into a standalone HTML page. Scenario
// messages come from the application under test, so the rendered body is
// sanitized before it is embedded.
func RenderHTML(md, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	body := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{Title: title, Content: template.HTML(body)})
	if err != nil {
		return []byte("<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error rendering report</h1></body></html>")
	}
	return buf.Bytes()
}
