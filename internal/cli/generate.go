package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khcheck/khcheck/internal/engine"
	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/observability/logging"
	otelobs "github.com/khcheck/khcheck/internal/observability/otel"
	"github.com/khcheck/khcheck/internal/observability/receipt"
)

// generateCmd writes a Kconfig fragment with the recommended values
var generateCmd = &cobra.Command{
	Use:   "generate --arch <ARCH>",
	Short: "Generate a Kconfig fragment with the hardening options",
	Long: `Generates a Kconfig fragment with the security hardening options for the
selected microarchitecture. Merge it into a kernel config with
scripts/kconfig/merge_config.sh.

Examples:
  khcheck generate --arch X86_64 > hardening.config
  khcheck generate --arch ARM64 --output arm64-hardening.config`,
	Args:         cobra.NoArgs,
	RunE:         runGenerate,
	SilenceUsage: true,
}

var (
	generateArchFlag      string
	generateOutputFlag    string
	generateModeFlag      string
	generateCatalogueFlag string
)

func init() {
	generateCmd.Flags().StringVarP(&generateArchFlag, "arch", "a", "", "Microarchitecture: X86_64, X86_32, ARM64, or ARM")
	generateCmd.Flags().StringVarP(&generateOutputFlag, "output", "o", "", "Write the fragment to a file (default: stdout)")
	generateCmd.Flags().StringVarP(&generateModeFlag, "mode", "m", "", "Not supported for generate")
	generateCmd.Flags().StringVar(&generateCatalogueFlag, "catalogue", "", "Use a custom rule catalogue YAML instead of the built-in one")
	_ = generateCmd.Flags().MarkHidden("mode")
	_ = generateCmd.MarkFlagRequired("arch")
}

// GetGenerateCmd export
func GetGenerateCmd() *cobra.Command {
	return generateCmd
}

func runGenerate(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "khcheck generate", os.Args[1:])
	defer func() {
		_ = sess.Finish(err, receipt.WithTarget(generateArchFlag, "", ""))
	}()

	ctx, span := otelobs.StartSpan(ctx, "khcheck.generate",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "generate"),
		attribute.String(otelobs.AttrArch, generateArchFlag),
	)
	defer func() {
		otelobs.RecordError(span, err)
		span.End()
	}()

	if generateModeFlag != "" {
		return fmt.Errorf("wrong mode %q for --generate", generateModeFlag)
	}
	arch, err := parseArchFlag(generateArchFlag)
	if err != nil {
		return err
	}
	cat, err := loadCatalogue(generateCatalogueFlag)
	if err != nil {
		return err
	}
	lines, err := engine.Fragment(cat, arch)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := engine.WriteFragment(&buf, lines); err != nil {
		return err
	}
	logging.From(ctx).Event(ctx, "generate.fragment", map[string]any{"arch": string(arch), "lines": len(lines)})

	if generateOutputFlag != "" {
		if err := os.WriteFile(generateOutputFlag, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write fragment: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[+] Kconfig fragment for %s written to %s\n", arch, generateOutputFlag)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
