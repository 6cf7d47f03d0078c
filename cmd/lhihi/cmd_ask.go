package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lhihi/internal/types"
)

var (
	askModel    string
	askJSON     bool
	askThinking bool
)

// askCmd sends one message without a stored conversation
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question",
	Long: `Routes one message exactly as the API would and prints the answer.

Example:
  lhihi ask "search for the latest Go release"
  lhihi ask --model deepseek/deepseek-r1:free "solve 3x + 4 = 19"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model hint (see `lhihi policy show`)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw generation result as JSON")
	askCmd.Flags().BoolVar(&askThinking, "thinking", false, "Show the thinking trace when there is one")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.router.Generate(cmd.Context(), types.GenerationRequest{
		UserInput: joinArgs(args),
		ModelHint: askModel,
	})

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, renderResult(newRenderer(100), res, askThinking))
	return nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
