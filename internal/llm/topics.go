package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"topictree/internal/similarity"
	"topictree/internal/tree"
)

const (
	mainTopicSystem = "You are a helpful AI that returns a single concise overarching descriptive topic for any comment."
	subtopicSystem  = "You return subtopics in JSON array form."

	DefaultMaxSubtopics = 4
)

// Completer is the chat call the generators need.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

type MainTopicGenerator struct {
	llm Completer
}

func NewMainTopicGenerator(llm Completer) *MainTopicGenerator {
	return &MainTopicGenerator{llm: llm}
}

// Generate asks for a one-word topic and keeps the first word of the reply.
func (g *MainTopicGenerator) Generate(ctx context.Context, comment string) (string, error) {
	prompt := fmt.Sprintf("Give me a one-word or short-phrase topic label for this comment:\n\n%s", comment)
	reply, err := g.llm.Complete(ctx, mainTopicSystem, prompt, 5)
	if err != nil {
		return "", err
	}
	return cleanMainTopic(reply), nil
}

type SubtopicGenerator struct {
	llm Completer
	max int
}

func NewSubtopicGenerator(llm Completer, max int) *SubtopicGenerator {
	if max <= 0 {
		max = DefaultMaxSubtopics
	}
	return &SubtopicGenerator{llm: llm, max: max}
}

func (g *SubtopicGenerator) Subtopics(ctx context.Context, comment string) ([]string, error) {
	prompt := fmt.Sprintf("Extract up to %d short subtopics from this comment as a JSON list:\n\n%s", g.max, comment)
	reply, err := g.llm.Complete(ctx, subtopicSystem, prompt, g.max*10)
	if err != nil {
		return nil, err
	}
	return parseSubtopics(reply, g.max), nil
}

func cleanMainTopic(reply string) string {
	fields := strings.Fields(unquote(reply))
	if len(fields) == 0 {
		return ""
	}
	return unquote(fields[0])
}

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// parseSubtopics reads a JSON array of strings, falling back to splitting
// on commas when the reply is not valid JSON. Entries with the same topic
// key, or whose words nearly match an earlier entry, are dropped.
func parseSubtopics(reply string, max int) []string {
	text := strings.TrimSpace(stripApologies(reply))
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		raw = strings.Split(strings.Trim(text, "[]"), ",")
	}

	seen := make(map[string]bool)
	topics := make([]string, 0, len(raw))
	for _, item := range raw {
		topic := unquote(item)
		key := tree.Normalize(topic)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, topic)
	}
	out := similarity.Dedupe(topics)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

var apology = regexp.MustCompile(`\b(i apologize|sorry|as an ai|i am unable|i cannot)\b`)

func stripApologies(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if apology.MatchString(strings.ToLower(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.ReplaceAll(s, `\u0027`, "'")
}
