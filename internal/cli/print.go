package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khcheck/khcheck/internal/models"
	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/observability/logging"
	otelobs "github.com/khcheck/khcheck/internal/observability/otel"
	"github.com/khcheck/khcheck/internal/observability/receipt"
)

// printCmd lists the recommendations for one architecture
var printCmd = &cobra.Command{
	Use:   "print --arch <ARCH>",
	Short: "Print the security hardening recommendations",
	Long: `Prints the security hardening recommendations for the selected
microarchitecture: X86_64, X86_32, ARM64, or ARM.

Examples:
  khcheck print --arch X86_64
  khcheck print --arch ARM64 -m json`,
	Args:         cobra.NoArgs,
	RunE:         runPrint,
	SilenceUsage: true,
}

var (
	printArchFlag      string
	printModeFlag      string
	printCatalogueFlag string
)

func init() {
	printCmd.Flags().StringVarP(&printArchFlag, "arch", "a", "", "Microarchitecture: X86_64, X86_32, ARM64, or ARM")
	printCmd.Flags().StringVarP(&printModeFlag, "mode", "m", "", "Report mode: verbose or json")
	printCmd.Flags().StringVar(&printCatalogueFlag, "catalogue", "", "Use a custom rule catalogue YAML instead of the built-in one")
	_ = printCmd.MarkFlagRequired("arch")
}

// GetPrintCmd export
func GetPrintCmd() *cobra.Command {
	return printCmd
}

func parseArchFlag(s string) (models.Arch, error) {
	arch, ok := models.ParseArch(s)
	if !ok {
		return "", fmt.Errorf("unsupported architecture %q (valid: %v)", s, models.SupportedArchs)
	}
	return arch, nil
}

func runPrint(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "khcheck print", os.Args[1:])
	defer func() {
		_ = sess.Finish(err, receipt.WithTarget(printArchFlag, "", ""))
	}()

	ctx, span := otelobs.StartSpan(ctx, "khcheck.print",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "print"),
		attribute.String(otelobs.AttrArch, printArchFlag),
	)
	defer func() {
		otelobs.RecordError(span, err)
		span.End()
	}()

	if printModeFlag != "" && printModeFlag != modeVerbose && printModeFlag != modeJSON {
		return fmt.Errorf("wrong mode %q for --print", printModeFlag)
	}
	arch, err := parseArchFlag(printArchFlag)
	if err != nil {
		return err
	}
	cat, err := loadCatalogue(printCatalogueFlag)
	if err != nil {
		return err
	}
	rules, err := cat.RulesFor(arch)
	if err != nil {
		return err
	}
	logging.From(ctx).Event(ctx, "print.rules", map[string]any{"arch": string(arch), "count": len(rules)})

	entries := make([]models.ReportEntry, 0, len(rules))
	for _, r := range rules {
		e := models.NewReportEntry(r)
		if printModeFlag != modeVerbose && printModeFlag != modeJSON {
			e.Children = nil
		}
		entries = append(entries, e)
	}

	out := cmd.OutOrStdout()
	if printModeFlag == modeJSON {
		return FormatJSON(out, entries)
	}
	if printModeFlag != "" {
		fmt.Fprintf(out, "[+] Special report mode: %s\n", printModeFlag)
	}
	fmt.Fprintf(out, "[+] Printing kernel security hardening options for %s...\n", arch)
	FormatCatalogueTable(out, entries, printModeFlag)
	return nil
}
