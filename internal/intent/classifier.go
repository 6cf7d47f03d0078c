// Package intent classifies a user utterance into the route it needs:
// tool use, multi-step reasoning, or plain conversation.
package intent

import (
	"regexp"
	"strings"

	"lhihi/internal/policy"
	"lhihi/internal/types"
)

// ToolIntent names one of the tool keyword sets.
type ToolIntent string

const (
	IntentImage    ToolIntent = "image"
	IntentSearch   ToolIntent = "search"
	IntentVideo    ToolIntent = "video"
	IntentTempMail ToolIntent = "temp_mail"
)

// Classification is the result of one Classify call.
type Classification struct {
	NeedsTools     bool         `json:"needsTools"`
	NeedsReasoning bool         `json:"needsReasoning"`
	ToolIntents    []ToolIntent `json:"toolIntents,omitempty"`
}

// Route maps the classification onto a route. Tools win outright, then reasoning.
func (c Classification) Route() types.Route {
	switch {
	case c.NeedsTools:
		return types.RouteTools
	case c.NeedsReasoning:
		return types.RouteReasoning
	default:
		return types.RouteDefault
	}
}

type keywordSet struct {
	intent   ToolIntent
	keywords []string
}

// Classifier holds the compiled form of one policy table.
// It is immutable and safe for concurrent use.
type Classifier struct {
	version   string
	toolSets  []keywordSet
	reasoning []string
	symbols   *regexp.Regexp
	digits    *regexp.Regexp
	contrast  *regexp.Regexp
}

// NewClassifier compiles the keyword sets and patterns of t.
// Patterns were validated when t was loaded; an empty pattern is disabled.
func NewClassifier(t *policy.Table) (*Classifier, error) {
	c := &Classifier{
		version: t.Version,
		toolSets: []keywordSet{
			{IntentImage, t.Keywords.Image},
			{IntentSearch, t.Keywords.Search},
			{IntentVideo, t.Keywords.Video},
			{IntentTempMail, t.Keywords.TempMail},
		},
		reasoning: t.Keywords.Reasoning,
	}

	var err error
	if c.symbols, err = compileOptional(t.Patterns.Symbols); err != nil {
		return nil, err
	}
	if c.digits, err = compileOptional(t.Patterns.Digits); err != nil {
		return nil, err
	}
	if c.contrast, err = compileOptional(t.Patterns.Contrast); err != nil {
		return nil, err
	}
	return c, nil
}

// Version is the policy version the classifier was built from.
func (c *Classifier) Version() string {
	return c.version
}

// Classify inspects the latest user input. It is pure and total.
func (c *Classifier) Classify(input string) Classification {
	lower := strings.ToLower(input)

	var out Classification
	for _, set := range c.toolSets {
		if containsAny(lower, set.keywords) {
			out.ToolIntents = append(out.ToolIntents, set.intent)
		}
	}
	out.NeedsTools = len(out.ToolIntents) > 0
	out.NeedsReasoning = c.needsReasoning(lower)
	return out
}

// Route is shorthand for Classify(input).Route().
func (c *Classifier) Route(input string) types.Route {
	return c.Classify(input).Route()
}

func (c *Classifier) needsReasoning(lower string) bool {
	if containsAny(lower, c.reasoning) {
		return true
	}
	if c.symbols != nil && c.digits != nil && c.symbols.MatchString(lower) && c.digits.MatchString(lower) {
		return true
	}
	return c.contrast != nil && c.contrast.MatchString(lower)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func compileOptional(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}
