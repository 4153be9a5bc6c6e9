// Package export writes the note collection out as Markdown or a standalone HTML page.
package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"quicknotes/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// Markdown renders notes in the order given, one second-level section each.
func Markdown(notes []model.Note) string {
	var buf bytes.Buffer
	writeLn := func(s string) {
		buf.WriteString(s)
		buf.WriteString("\n")
	}

	writeLn("# Notes")
	writeLn("")
	if len(notes) == 0 {
		writeLn("_No notes._")
		return buf.String()
	}
	for i, n := range notes {
		if i > 0 {
			writeLn("")
		}
		writeLn("## " + oneLine(n.Title))
		writeLn("")
		writeLn("_" + n.CreatedTime().UTC().Format(timeLayout) + " UTC_")
		if body := strings.TrimSpace(n.Content); body != "" {
			writeLn("")
			writeLn(body)
		}
	}
	return buf.String()
}

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		emoji.Emoji,
	),
	// Raw HTML in note content is escaped, never passed through.
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

func renderMarkdownHTML(src string) template.HTML {
	src = strings.TrimSpace(src)
	if src == "" {
		return template.HTML("")
	}
	var b bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &b); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(b.String())
}

var pageTmpl = template.Must(template.New("notes").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:44rem;margin:3rem auto;padding:0 1rem;line-height:1.5;color:#222}
article{border-top:1px solid #ddd;padding:1rem 0}
time{color:#777;font-size:.85rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Count}}</p>
{{range .Notes}}<article id="note-{{.ID}}">
<h2>{{.Title}}</h2>
<time datetime="{{.ISO}}">{{.When}}</time>
{{.Body}}
</article>
{{end}}</body>
</html>
`))

type htmlNote struct {
	ID    string
	Title string
	ISO   string
	When  string
	Body  template.HTML
}

// HTML renders notes as a self-contained page. Titles are escaped; content is Markdown.
func HTML(notes []model.Note, countText string) ([]byte, error) {
	data := struct {
		Title string
		Count string
		Notes []htmlNote
	}{Title: "Notes", Count: countText}
	for _, n := range notes {
		created := n.CreatedTime().UTC()
		data.Notes = append(data.Notes, htmlNote{
			ID:    n.ID,
			Title: oneLine(n.Title),
			ISO:   created.Format(time.RFC3339),
			When:  created.Format(timeLayout) + " UTC",
			Body:  renderMarkdownHTML(n.Content),
		})
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
