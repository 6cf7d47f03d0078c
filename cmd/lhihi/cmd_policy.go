package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lhihi/internal/policy"
)

// policyCmd groups the policy table commands
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate routing policy tables",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active policy table as YAML",
	Args:  cobra.NoArgs,
	RunE:  runPolicyShow,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a policy file without activating it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyValidate,
}

func init() {
	policyCmd.AddCommand(policyShowCmd, policyValidateCmd)
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	tbl := policy.Default()
	if cfg.Policy.Path != "" {
		var err error
		if tbl, err = policy.Load(cfg.Policy.Path); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(tbl)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	tbl, err := policy.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version %s OK (%d backends, %d hints)\n",
		args[0], tbl.Version, len(tbl.Backends), len(tbl.Hints))
	return nil
}
