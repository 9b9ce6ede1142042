package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"topictree/internal/tree"
)

//go:embed templates/*.html
var templateFS embed.FS

var treeTemplate = template.Must(template.New("tree.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/tree.html"))

// TemplateData holds data for tree template rendering
type TemplateData struct {
	Title       string
	TreeID      string
	GeneratedAt time.Time
	Topics      []TemplateNode
	Comments    int
}

// TemplateNode is one topic with its comments and subtopics.
type TemplateNode struct {
	Key      string
	Label    string
	Comments []string
	Children []TemplateNode
}

// TemplateDataFor walks t in stored order.
func TemplateDataFor(id, title string, t *tree.Tree, now time.Time) TemplateData {
	data := TemplateData{Title: title, TreeID: id, GeneratedAt: now}
	for _, key := range t.MainKeys() {
		node, _ := t.Find(key)
		data.Topics = append(data.Topics, toTemplateNode(key, node, &data.Comments))
	}
	return data
}

func toTemplateNode(key string, n *tree.Node, count *int) TemplateNode {
	out := TemplateNode{Key: key, Label: n.Label, Comments: n.Comments}
	*count += len(n.Comments)
	for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
		out.Children = append(out.Children, toTemplateNode(pair.Key, pair.Value, count))
	}
	return out
}

// RenderTreeHTML renders the tree template with provided data
func RenderTreeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := treeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
