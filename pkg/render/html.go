package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/sitedocs/formexport/pkg/models"
)

// Item pairs one form document with its resolved assets for rendering.
type Item struct {
	Doc    *models.FormDocument
	Assets []models.AssetRelationship
}

// documentTemplate lays out one or more forms: per form a title, optional
// logo, one table per section, then a linked-assets table when any assets
// resolved. Each form after the first starts on a fresh page when printed.
var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: "Helvetica Neue", Arial, sans-serif; color: #1a1a1a; margin: 0; }
  h1 { font-size: 20px; border-bottom: 2px solid #0a0a0a; padding-bottom: 8px; }
  h2 { font-size: 14px; margin-top: 24px; text-transform: uppercase; letter-spacing: .05em; }
  table { width: 100%; border-collapse: collapse; margin-top: 8px; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #ddd; font-size: 12px; vertical-align: top; }
  th { width: 35%; color: #555; font-weight: 600; }
  .form { position: relative; }
  .form + .form { page-break-before: always; }
  .logo { max-height: {{.LogoHeight}}px; position: absolute; {{.LogoCSS}} }
  .timestamp { color: #888; font-size: 10px; margin-top: 32px; }
  .match { color: #777; font-size: 11px; }
</style>
</head>
<body>
{{$root := .}}
{{range .Items}}
<div class="form">
{{if $root.LogoURI}}<img class="logo" src="{{$root.LogoURI}}" alt="">{{end}}
<h1>{{.Doc.Name}}</h1>
{{range .Doc.Sections}}
<h2>{{.Title}}</h2>
<table>
{{range .Fields}}  <tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}
{{if .Assets}}
<h2>Linked Assets</h2>
<table>
  <tr><th>Asset</th><td>Details</td></tr>
{{range .Assets}}  <tr><th>{{.Name}}</th><td>{{if .LocationName}}{{.LocationName}} &middot; {{end}}<span class="match">{{.MatchReason}}</span></td></tr>
{{end}}</table>
{{end}}
</div>
{{end}}
{{if .Timestamp}}<div class="timestamp">Generated {{.Timestamp}}</div>{{end}}
</body>
</html>
`))

type templateData struct {
	Items      []Item
	LogoURI    template.URL
	LogoCSS    template.CSS
	LogoHeight int
	Timestamp  string
}

// BuildHTML renders one form document to a standalone HTML page.
func BuildHTML(doc *models.FormDocument, assets []models.AssetRelationship, opts StyleOptions) ([]byte, error) {
	return BuildBatchHTML([]Item{{Doc: doc, Assets: assets}}, opts)
}

// BuildBatchHTML renders several forms into one page-broken HTML document,
// the source of the merged batch PDF.
func BuildBatchHTML(items []Item, opts StyleOptions) ([]byte, error) {
	data := templateData{
		Items:      items,
		LogoCSS:    logoCSS(opts.LogoPosition),
		LogoHeight: logoHeight(opts.LogoSize),
	}
	if len(opts.LogoData) > 0 {
		mime := opts.LogoMIME
		if mime == "" {
			mime = "image/png"
		}
		data.LogoURI = template.URL(fmt.Sprintf("data:%s;base64,%s",
			mime, base64.StdEncoding.EncodeToString(opts.LogoData)))
	}
	if opts.IncludeTimestamp {
		data.Timestamp = time.Now().Format("2006-01-02 15:04 MST")
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render document template: %w", err)
	}
	return buf.Bytes(), nil
}

func logoCSS(pos LogoPosition) template.CSS {
	switch pos {
	case LogoTopLeft:
		return "top: 16px; left: 16px;"
	case LogoBottomLeft:
		return "bottom: 16px; left: 16px;"
	case LogoBottomRight:
		return "bottom: 16px; right: 16px;"
	default:
		return "top: 16px; right: 16px;"
	}
}

func logoHeight(size LogoSize) int {
	switch size {
	case LogoSmall:
		return 32
	case LogoLarge:
		return 96
	default:
		return 56
	}
}
