package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lhihi/internal/policy"
	"lhihi/internal/types"
)

func newDefaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(policy.Default())
	require.NoError(t, err)
	return c
}

func TestClassify(t *testing.T) {
	c := newDefaultClassifier(t)

	tests := []struct {
		name      string
		input     string
		tools     bool
		reasoning bool
		intents   []ToolIntent
		route     types.Route
	}{
		{
			name:      "image beats reasoning",
			input:     "Generate image of a robot and calculate 2+2",
			tools:     true,
			reasoning: true,
			intents:   []ToolIntent{IntentImage},
			route:     types.RouteTools,
		},
		{
			name:      "keyword plus digit and symbol",
			input:     "calculate 2+2 = 4",
			reasoning: true,
			route:     types.RouteReasoning,
		},
		{
			name:    "temp mail",
			input:   "temp mail please",
			tools:   true,
			intents: []ToolIntent{IntentTempMail},
			route:   types.RouteTools,
		},
		{
			name:    "search is case insensitive",
			input:   "Search for the LATEST headlines",
			tools:   true,
			intents: []ToolIntent{IntentSearch},
			route:   types.RouteTools,
		},
		{
			name:    "video",
			input:   "show me a video about sourdough on youtube",
			tools:   true,
			intents: []ToolIntent{IntentVideo},
			route:   types.RouteTools,
		},
		{
			name:    "several tool sets",
			input:   "draw me a cat and find video of cats",
			tools:   true,
			intents: []ToolIntent{IntentImage, IntentVideo},
			route:   types.RouteTools,
		},
		{
			name:      "contrast pattern",
			input:     "Why is the sky blue but the sea green",
			reasoning: true,
			route:     types.RouteReasoning,
		},
		{
			name:      "digits and symbols without keyword",
			input:     "x = 12",
			reasoning: true,
			route:     types.RouteReasoning,
		},
		{
			name:  "digit without symbol",
			input: "I have 3 cats",
			route: types.RouteDefault,
		},
		{
			name:  "symbol without digit",
			input: "hello (friend)",
			route: types.RouteDefault,
		},
		{
			name:  "plain chat",
			input: "hello there",
			route: types.RouteDefault,
		},
		{
			name:  "empty",
			input: "",
			route: types.RouteDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			assert.Equal(t, tt.tools, got.NeedsTools)
			assert.Equal(t, tt.reasoning, got.NeedsReasoning)
			assert.Equal(t, tt.intents, got.ToolIntents)
			assert.Equal(t, tt.route, got.Route())
			assert.Equal(t, tt.route, c.Route(tt.input))
		})
	}
}

func TestClassifierFollowsPolicy(t *testing.T) {
	tbl := policy.Default()
	tbl.Version = "custom"
	tbl.Keywords.Image = []string{"paint"}
	tbl.Patterns.Contrast = ""

	c, err := NewClassifier(tbl)
	require.NoError(t, err)

	assert.Equal(t, "custom", c.Version())
	assert.Equal(t, types.RouteTools, c.Route("paint a sunset"))
	assert.Equal(t, types.RouteDefault, c.Route("generate image of a sunset"))
	assert.Equal(t, types.RouteDefault, c.Route("why this and that"))
}

func TestNewClassifierRejectsBadPattern(t *testing.T) {
	tbl := policy.Default()
	tbl.Patterns.Symbols = "[unclosed"

	_, err := NewClassifier(tbl)
	assert.Error(t, err)
}
