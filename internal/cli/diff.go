package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khcheck/khcheck/internal/differ"
	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/observability/logging"
	otelobs "github.com/khcheck/khcheck/internal/observability/otel"
	"github.com/khcheck/khcheck/internal/observability/receipt"
)

// diffCmd compares two JSON check reports
var diffCmd = &cobra.Command{
	Use:   "diff <old-report.json> <new-report.json>",
	Short: "Compare two JSON check reports",
	Long: `Diff compares two reports written by 'khcheck check -m json' and lists
per-check changes: regressions (OK to FAIL), improvements (FAIL to OK),
changed recommendations, and added or removed checks.

Exits 1 when a change reaches the --fail-on threshold.

Example:
  khcheck diff before.json after.json
  khcheck diff before.json after.json --fail-on moderate --format json`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         runDiff,
}

var (
	diffFailOnFlag string
	diffFormatFlag string
)

func init() {
	diffCmd.Flags().StringVar(&diffFailOnFlag, "fail-on", "critical", "Severity threshold for failure: critical, moderate, or info")
	diffCmd.Flags().StringVar(&diffFormatFlag, "format", "text", "Output format: text or json")
}

// GetDiffCmd returns the diff command
func GetDiffCmd() *cobra.Command {
	return diffCmd
}

func runDiff(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "khcheck diff", os.Args[1:])
	sess.Record(receipt.WithInput("old_report", args[0]), receipt.WithInput("new_report", args[1]))
	defer func() {
		_ = sess.Finish(err)
	}()

	ctx, span := otelobs.StartSpan(ctx, "khcheck.diff",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "diff"),
	)
	defer func() {
		otelobs.RecordError(span, err)
		span.End()
	}()

	failOn, err := differ.ParseSeverity(diffFailOnFlag)
	if err != nil {
		return fmt.Errorf("invalid --fail-on: %w", err)
	}
	if diffFormatFlag != "text" && diffFormatFlag != "json" {
		return fmt.Errorf("invalid format: %s (use text or json)", diffFormatFlag)
	}

	old, err := differ.LoadReport(args[0])
	if err != nil {
		return err
	}
	cur, err := differ.LoadReport(args[1])
	if err != nil {
		return err
	}

	result, err := differ.Compare(old, cur)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String(otelobs.AttrArch, string(result.Arch)))

	regressions, improvements := 0, 0
	for _, c := range result.Changes {
		switch c.Type {
		case differ.ChangeRegression:
			regressions++
		case differ.ChangeImprovement:
			improvements++
		}
	}
	other := len(result.Changes) - regressions - improvements
	sess.Record(receipt.WithDrift(regressions, improvements, other,
		fmt.Sprintf("%d regression(s), %d improvement(s), %d other", regressions, improvements, other)))
	logging.From(ctx).Event(ctx, "diff.complete", map[string]any{
		"regressions":  regressions,
		"improvements": improvements,
		"other":        other,
	})

	out := cmd.OutOrStdout()
	if diffFormatFlag == "json" {
		if err := FormatJSON(out, result); err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
	} else {
		FormatDiffText(out, result)
	}

	if n := countAtLeast(result, failOn); n > 0 {
		if diffFormatFlag == "json" {
			return errExit
		}
		return fmt.Errorf("%d change(s) at or above %s severity", n, failOn)
	}
	return nil
}

func countAtLeast(result *differ.Result, threshold differ.SeverityLevel) int {
	n := 0
	for _, c := range result.Changes {
		if c.Level() >= threshold {
			n++
		}
	}
	return n
}

// FormatDiffText prints changes grouped the way the check table reads
func FormatDiffText(w io.Writer, result *differ.Result) {
	fmt.Fprintf(w, "[+] Comparing reports for %s: 'OK' %d -> %d / 'FAIL' %d -> %d\n",
		result.Arch, result.OldSummary.OK, result.NewSummary.OK, result.OldSummary.Fail, result.NewSummary.Fail)

	if !result.HasChanges {
		fmt.Fprintln(w, styleOK.Render("✓ No changes detected"))
		return
	}
	fmt.Fprintln(w)

	for _, c := range result.Changes {
		icon, style := changeMarker(c.Type)
		fmt.Fprintf(w, "%s %s\n", style.Render("["+icon+"] "+c.OptionName), c.Message)
		switch {
		case c.Old != "" && c.New != "":
			fmt.Fprintf(w, "    %s → %s\n", c.Old, c.New)
		case c.New != "":
			fmt.Fprintf(w, "    %s\n", c.New)
		case c.Old != "":
			fmt.Fprintf(w, "    was %s\n", c.Old)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "[+] %d change(s), highest severity: %s\n", len(result.Changes), result.MaxSeverity())
}

func changeMarker(t differ.ChangeType) (string, lipgloss.Style) {
	switch t {
	case differ.ChangeRegression:
		return "!", styleFail
	case differ.ChangeImprovement:
		return "+", styleOK
	case differ.ChangeAdded:
		return "+", styleWarn
	case differ.ChangeRemoved:
		return "-", styleWarn
	case differ.ChangeRule:
		return "~", styleWarn
	default:
		return "~", lipgloss.NewStyle()
	}
}
