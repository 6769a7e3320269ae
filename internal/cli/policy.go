package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khcheck/khcheck/internal/observability/receipt"
	"github.com/khcheck/khcheck/internal/policy"
)

// policyCmd groups gate policy helpers
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate gate policies",
	Long: `Gate policies are CEL rules evaluated over a check report by
'khcheck check --policy'. Built-in presets: none, strict, self-protection, kspp.`,
}

var policyListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List built-in policy presets",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range policy.ListPresetNames() {
			p := policy.GetPreset(name)
			fmt.Fprintf(out, "%-16s mode=%-6s rules=%d\n", name, gateMode(p), len(p.Rules))
		}
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <preset-or-file>",
	Short: "Compile a policy and report rule errors",
	Long: `Compiles every rule of a preset or policy file against the check input
schema and reports unknown severities, syntax errors, and non-boolean
expressions.

Example:
  khcheck policy validate ./my-policy.yaml`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runPolicyValidate,
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyValidateCmd)
}

// GetPolicyCmd export
func GetPolicyCmd() *cobra.Command {
	return policyCmd
}

func runPolicyValidate(cmd *cobra.Command, args []string) (err error) {
	sess := receipt.Start(cmd.Context(), "khcheck policy validate", os.Args[1:])
	defer func() {
		_ = sess.Finish(err)
	}()

	config, err := policy.Resolve(args[0])
	if err != nil {
		return err
	}
	eng, err := policy.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to create policy engine: %w", err)
	}
	if err := eng.CompileAndValidate(config); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s policy %s is valid (%d rules)\n", styleOK.Render("✓"), config.Name, len(config.Rules))
	return nil
}
