// Package tagger files a comment into a topic tree: it resolves the main
// topic, collects subtopic paths from the extractor and the subtopic
// generator, and inserts the comment under each path.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"topictree/internal/logger"
	"topictree/internal/metrics"
	"topictree/internal/resolver"
	"topictree/internal/tree"
	"topictree/internal/treestore"
)

var ErrEmptyComment = errors.New("comment is empty")

// Extractor returns noun-based subtopics for text. It never fails.
type Extractor interface {
	Extract(ctx context.Context, text string) []string
}

// SubtopicGenerator returns generated subtopics for text. An empty result is valid.
type SubtopicGenerator interface {
	Subtopics(ctx context.Context, text string) ([]string, error)
}

type Result struct {
	TreeID string     `json:"tree_key"`
	Main   string     `json:"main"`
	Paths  [][]string `json:"paths"`
}

type Tagger struct {
	store     *treestore.Store
	resolver  *resolver.Resolver
	extractor Extractor
	subtopics SubtopicGenerator
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// New wires a tagger. extractor and subtopics may be nil; log and m are optional.
func New(store *treestore.Store, res *resolver.Resolver, extractor Extractor, subtopics SubtopicGenerator, log *logger.Logger, m *metrics.Metrics) *Tagger {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tagger{
		store:     store,
		resolver:  res,
		extractor: extractor,
		subtopics: subtopics,
		logger:    log.With("component", "tagger"),
		metrics:   m,
	}
}

// Tag files comment into tree id and reports where it went. The noun path
// and the generated path are each walked from the main topic. Unknown tree
// ids fail with treestore.ErrNotFound before any collaborator is called.
func (t *Tagger) Tag(ctx context.Context, id, comment string) (Result, error) {
	if strings.TrimSpace(comment) == "" {
		return Result{}, ErrEmptyComment
	}

	existing, err := t.store.ListMainTopics(ctx, id)
	if err != nil {
		return Result{}, err
	}

	resolution, err := t.resolver.Resolve(ctx, comment, existing)
	if err != nil {
		t.countFailure("main_topic")
		return Result{}, err
	}
	if t.metrics != nil {
		t.metrics.Resolutions.WithLabelValues(string(resolution.Outcome)).Inc()
	}

	paths := make([][]string, 0, 2)
	if t.extractor != nil {
		if nouns := usable(t.extractor.Extract(ctx, comment)); len(nouns) > 0 {
			paths = append(paths, nouns)
		}
	}
	if t.subtopics != nil {
		generated, err := t.subtopics.Subtopics(ctx, comment)
		if err != nil {
			t.countFailure("subtopics")
			return Result{}, fmt.Errorf("%w: generate subtopics: %w", resolver.ErrGeneratorFailure, err)
		}
		if generated = usable(generated); len(generated) > 0 {
			paths = append(paths, generated)
		}
	}

	if _, err := t.store.InsertComment(ctx, id, resolution.Label, paths, comment); err != nil {
		return Result{}, err
	}
	if t.metrics != nil {
		t.metrics.CommentsTagged.Inc()
	}
	t.logger.Debug("comment tagged",
		"tree_id", id,
		"main", resolution.Label,
		"outcome", resolution.Outcome,
		"score", resolution.Score,
		"paths", len(paths),
	)
	return Result{TreeID: id, Main: resolution.Label, Paths: paths}, nil
}

func (t *Tagger) countFailure(stage string) {
	if t.metrics != nil {
		t.metrics.GeneratorErrors.WithLabelValues(stage).Inc()
	}
}

// usable drops labels without a usable key.
func usable(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if tree.ValidLabel(label) {
			out = append(out, label)
		}
	}
	return out
}
