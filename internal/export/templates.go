package export

import (
	"bytes"
	"embed"
	"html/template"

	"docdiff/api/internal/prosemirror"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	templateContent, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		// Fallback to built-in template if file not found
		documentTemplate = template.Must(template.New("document").Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Parse(string(templateContent)))
}

// RenderOptions controls the document shell around rendered content.
type RenderOptions struct {
	Title         string
	IncludeTitle  bool
	IncludeStyles bool
	Centered      bool
}

// DefaultRenderOptions returns the options used when a caller sets none.
func DefaultRenderOptions(title string) RenderOptions {
	return RenderOptions{Title: title, IncludeTitle: true, IncludeStyles: true, Centered: true}
}

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title         string
	IncludeTitle  bool
	IncludeStyles bool
	Centered      bool
	ContentHTML   template.HTML
}

// RenderHTML renders a full HTML document for tree. The body content sits in
// <div id="content"> inside the <article> element.
func RenderHTML(tree prosemirror.Node, opts RenderOptions) (string, error) {
	return RenderDocumentHTML(TemplateData{
		Title:         opts.Title,
		IncludeTitle:  opts.IncludeTitle,
		IncludeStyles: opts.IncludeStyles,
		Centered:      opts.Centered,
		ContentHTML:   template.HTML(TreeToHTML(tree)),
	})
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <div class="document{{if .Centered}} centered{{end}}">
    <article>
      {{if .IncludeTitle}}<h1 class="title">{{.Title}}</h1>{{end}}
      <div id="content" class="ProseMirror">{{.ContentHTML}}</div>
    </article>
  </div>
</body>
</html>`
