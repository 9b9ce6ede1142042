// Package resolver picks the main topic for a comment: an existing main
// topic when one is similar enough, otherwise a generated one.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"topictree/internal/tree"
)

const (
	DefaultThreshold = 0.5
	// DefaultTopic is used when nothing better can be derived from a comment.
	DefaultTopic = "general"
)

var (
	ErrGeneratorFailure = errors.New("topic generator failed")
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
)

// Scorer compares text against candidate labels and returns the index and
// score of the best one. Ties go to the lowest index.
type Scorer interface {
	Score(ctx context.Context, text string, candidates []string) (int, float64, error)
}

type ScorerFunc func(ctx context.Context, text string, candidates []string) (int, float64, error)

func (f ScorerFunc) Score(ctx context.Context, text string, candidates []string) (int, float64, error) {
	return f(ctx, text, candidates)
}

// Generator produces a main topic label for text.
type Generator interface {
	Generate(ctx context.Context, text string) (string, error)
}

type GeneratorFunc func(ctx context.Context, text string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// Resolve returns the existing label that best matches comment when its
// score reaches threshold, otherwise the generator's label, otherwise
// DefaultTopic. Existing labels are returned verbatim. A nil scorer skips
// the similarity check and a nil generator skips generation.
func Resolve(ctx context.Context, comment string, existing []string, scorer Scorer, threshold float64, generate Generator) (string, error) {
	res, err := resolve(ctx, comment, existing, scorer, threshold, generate)
	if err != nil {
		return "", err
	}
	if res.Outcome == OutcomeFallback {
		return DefaultTopic, nil
	}
	return res.Label, nil
}

type Outcome string

const (
	OutcomeReused    Outcome = "reused"
	OutcomeGenerated Outcome = "generated"
	OutcomeFallback  Outcome = "fallback"
)

type Resolution struct {
	Label   string
	Outcome Outcome
	// Score is the best similarity seen, or -1 when nothing was scored.
	Score float64
}

func resolve(ctx context.Context, comment string, existing []string, scorer Scorer, threshold float64, generate Generator) (Resolution, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Resolution{}, err
	}
	best := -1.0
	if len(existing) > 0 && scorer != nil {
		idx, score, err := scorer.Score(ctx, comment, existing)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: score main topics: %w", ErrGeneratorFailure, err)
		}
		if idx < 0 || idx >= len(existing) {
			return Resolution{}, fmt.Errorf("%w: scorer returned index %d for %d candidates", ErrGeneratorFailure, idx, len(existing))
		}
		best = score
		if score >= threshold {
			return Resolution{Label: existing[idx], Outcome: OutcomeReused, Score: score}, nil
		}
	}
	if generate != nil {
		label, err := generate.Generate(ctx, comment)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: generate main topic: %w", ErrGeneratorFailure, err)
		}
		return Resolution{Label: label, Outcome: OutcomeGenerated, Score: best}, nil
	}
	return Resolution{Outcome: OutcomeFallback, Score: best}, nil
}

// Resolver bundles the collaborators used to resolve main topics. Fallback
// derives a label from the comment itself when no generator is configured
// or the generated label has no usable key; DefaultTopic is used when
// Fallback is nil or yields nothing usable.
type Resolver struct {
	Scorer    Scorer
	Generator Generator
	Fallback  func(comment string) string
	Threshold float64
}

func New(scorer Scorer, generator Generator, fallback func(string) string, threshold float64) (*Resolver, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Resolver{Scorer: scorer, Generator: generator, Fallback: fallback, Threshold: threshold}, nil
}

func (r *Resolver) Resolve(ctx context.Context, comment string, existing []string) (Resolution, error) {
	res, err := resolve(ctx, comment, existing, r.Scorer, r.Threshold, r.Generator)
	if err != nil {
		return Resolution{}, err
	}
	if res.Outcome == OutcomeGenerated && tree.ValidLabel(res.Label) {
		return res, nil
	}
	if res.Outcome == OutcomeReused {
		return res, nil
	}
	res.Outcome = OutcomeFallback
	res.Label = DefaultTopic
	if r.Fallback != nil {
		if label := r.Fallback(comment); tree.ValidLabel(label) {
			res.Label = label
		}
	}
	return res, nil
}
