package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"lhihi/internal/policy"
	"lhihi/internal/router"
	"lhihi/internal/types"
)

var classifyModel string

// classifyCmd explains the route a message would take
var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Show the route a message would take",
	Long: `Runs the intent classifier and the route decision without calling any
backend. Useful for checking a policy table before deploying it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyModel, "model", "m", "", "Model hint")
}

type classifyOutput struct {
	Input          string              `json:"input"`
	NeedsTools     bool                `json:"needsTools"`
	NeedsReasoning bool                `json:"needsReasoning"`
	ToolIntents    []string            `json:"toolIntents,omitempty"`
	Decision       types.RouteDecision `json:"decision"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	holder := policy.NewHolder(nil)
	if cfg.Policy.Path != "" {
		if err := holder.Reload(cfg.Policy.Path); err != nil {
			return err
		}
	}
	rt := router.New(holder, nil, router.Config{})

	input := joinArgs(args)
	c := rt.Classify(input)
	out := classifyOutput{
		Input:          input,
		NeedsTools:     c.NeedsTools,
		NeedsReasoning: c.NeedsReasoning,
		Decision:       rt.Decide(types.GenerationRequest{UserInput: input, ModelHint: classifyModel}),
	}
	for _, ti := range c.ToolIntents {
		out.ToolIntents = append(out.ToolIntents, string(ti))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
