package postprocess

import (
	"regexp"
	"strings"

	"lhihi/internal/types"
)

// MaxSources caps the sources attached to a result.
const MaxSources = 3

var thinkBlock = regexp.MustCompile(`(?s)^\s*<think>(.*?)</think>\s*`)

// SplitThinking moves a leading <think>...</think> block into the thinking
// trace. Text without such a block is returned unchanged.
func SplitThinking(text string) (answer, thinking string) {
	m := thinkBlock.FindStringSubmatchIndex(text)
	if m == nil {
		return text, ""
	}
	return text[m[1]:], strings.TrimSpace(text[m[2]:m[3]])
}

// Output is the post-processed part of a GenerationResult.
type Output struct {
	Response       string
	RelatedQueries []string
	Sources        []string
	Thinking       string
	Segments       []types.Segment
}

// Finalize post-processes backend text. thinking is a trace the backend
// returned separately; an inline <think> block is appended to it. Sources are
// deduplicated and capped at MaxSources in order of first appearance.
func Finalize(text, thinking string, sources []string) Output {
	answer, inline := SplitThinking(text)
	thinking = strings.TrimSpace(thinking)
	if inline != "" {
		if thinking != "" {
			thinking += "\n\n"
		}
		thinking += inline
	}

	return Output{
		Response:       answer,
		RelatedQueries: ExtractRelatedQueries(answer),
		Sources:        topSources(sources, MaxSources),
		Thinking:       thinking,
		Segments:       ParseSegments(answer),
	}
}

// Apply copies the output into a result.
func (o Output) Apply(r *types.GenerationResult) {
	r.Response = o.Response
	r.RelatedQueries = o.RelatedQueries
	r.Sources = o.Sources
	r.Thinking = o.Thinking
	r.Segments = o.Segments
}

func topSources(sources []string, limit int) []string {
	var out []string
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
