package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"topictree/internal/tree"
	"topictree/internal/treestore"
)

type fakeTrees map[string]*tree.Tree

func (f fakeTrees) Get(_ context.Context, id string) (*tree.Tree, error) {
	t, ok := f[id]
	if !ok {
		return nil, treestore.ErrNotFound
	}
	return t, nil
}

func sampleTrees(t *testing.T) fakeTrees {
	t.Helper()
	tr := tree.New()
	if err := tr.Insert("Sports", [][]string{{"Football"}}, "<b>Great</b> match"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert("Weather", [][]string{{}}, "Rain again"); err != nil {
		t.Fatal(err)
	}
	return fakeTrees{"t1": tr}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(sampleTrees(t), nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	res, err := svc.Export(context.Background(), Request{TreeID: "t1", Format: "HTML", Title: "Feedback Q1"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	html := string(res.Data)

	if res.Filename != "Feedback-Q1.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("unexpected result metadata: %s %s", res.Filename, res.MimeType)
	}
	for _, want := range []string{"Feedback Q1", "Sports", "Football", "Weather", "Rain again", "2 comments", "Mar 1, 2024"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "<b>Great</b>") {
		t.Error("comment html was not escaped")
	}
	if strings.Index(html, "Sports") > strings.Index(html, "Weather") {
		t.Error("topics rendered out of order")
	}
}

func TestExportPDFUsesRenderer(t *testing.T) {
	var gotHTML string
	svc := NewService(sampleTrees(t), func(_ context.Context, html string) ([]byte, error) {
		gotHTML = html
		return []byte("%PDF-1.4"), nil
	})

	res, err := svc.Export(context.Background(), Request{TreeID: "t1", Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if string(res.Data) != "%PDF-1.4" || res.MimeType != "application/pdf" {
		t.Fatalf("unexpected pdf result: %+v", res)
	}
	if res.Filename != "Topic-tree-t1.pdf" {
		t.Fatalf("Filename = %q", res.Filename)
	}
	if !strings.Contains(gotHTML, "Football") {
		t.Fatal("renderer did not receive the tree html")
	}
}

func TestExportJSONKeepsDocument(t *testing.T) {
	svc := NewService(sampleTrees(t), nil)
	res, err := svc.Export(context.Background(), Request{TreeID: "t1", Format: FormatJSON})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	decoded, err := tree.Decode(res.Data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := strings.Join(decoded.MainTopics(), ","); got != "Sports,Weather" {
		t.Fatalf("MainTopics() = %s", got)
	}
}

func TestExportErrors(t *testing.T) {
	svc := NewService(sampleTrees(t), func(context.Context, string) ([]byte, error) {
		return nil, ErrPDFDependencyMissing
	})
	ctx := context.Background()

	if _, err := svc.Export(ctx, Request{TreeID: "t1", Format: "docx"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("docx error = %v", err)
	}
	if _, err := svc.Export(ctx, Request{TreeID: "missing"}); !errors.Is(err, treestore.ErrNotFound) {
		t.Errorf("missing tree error = %v", err)
	}
	if _, err := svc.Export(ctx, Request{TreeID: "t1", Format: FormatPDF}); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Errorf("pdf error = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Hello World":           "Hello-World",
		"a/b\\c":                "abc",
		"":                      "topic-tree",
		"***":                   "topic-tree",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
