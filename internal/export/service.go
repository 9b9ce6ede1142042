package export

import (
	"context"
	"fmt"
	"time"

	"topictree/internal/tree"
)

// TreeSource loads a tree by id.
type TreeSource interface {
	Get(ctx context.Context, id string) (*tree.Tree, error)
}

// Service provides tree export functionality
type Service struct {
	trees TreeSource
	pdf   PDFRenderer
	now   func() time.Time
}

// NewService creates an export service. A nil renderer uses ChromePDF.
func NewService(trees TreeSource, pdf PDFRenderer) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	return &Service{trees: trees, pdf: pdf, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	format, err := ParseFormat(string(req.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.Format)
	}

	t, err := s.trees.Get(ctx, req.TreeID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	title := req.Title
	if title == "" {
		title = "Topic tree " + req.TreeID
	}
	base := sanitizeFilename(title)

	if format == FormatJSON {
		doc, err := tree.Encode(t)
		if err != nil {
			return nil, err
		}
		return &Result{Data: doc, Filename: base + ".json", MimeType: "application/json"}, nil
	}

	html, err := RenderTreeHTML(TemplateDataFor(req.TreeID, title, t, s.now()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if format == FormatHTML {
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	}

	pdf, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: pdf, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
}
