// Command lhihi runs the Lhihi chat router: an HTTP API, a terminal chat and
// a handful of maintenance commands around the routing policy and the
// conversation store.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lhihi/internal/config"
	"lhihi/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lhihi",
	Short: "Lhihi AI - multi-backend chat router",
	Long: `Lhihi routes each chat message to the backend that suits it:
tool-capable models for search, images, videos and temp mail, a thinking
model for calculations and comparisons, and a fast chat model otherwise.

Run "lhihi serve" for the HTTP API or "lhihi chat" for a terminal session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		logger = logging.Get(logging.CategoryBoot).Zap()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lhihi.yaml", "Path to the config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Override the whole-request budget (e.g. 90s)")

	rootCmd.AddCommand(serveCmd, askCmd, chatCmd, classifyCmd, policyCmd, conversationsCmd)
}

// loadConfig reads the config file, applies flag overrides and starts logging.
func loadConfig() (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if timeout > 0 {
		c.Timeouts.Request = timeout.String()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if err := logging.Initialize(c.Logging.ToLogging()); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
