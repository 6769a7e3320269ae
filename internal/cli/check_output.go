package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/khcheck/khcheck/internal/models"
	"github.com/khcheck/khcheck/internal/policy"
)

// Report modes
const (
	modeVerbose  = "verbose"
	modeJSON     = "json"
	modeShowOK   = "show_ok"
	modeShowFail = "show_fail"
)

const (
	tableWidth  = 91
	resultWidth = 30
	// composite banner column, 4 spaces of indent plus this fill tableWidth
	bannerWidth = 87
)

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

func validCheckMode(mode string) bool {
	switch mode {
	case "", modeVerbose, modeJSON, modeShowOK, modeShowFail:
		return true
	}
	return false
}

// center pads s to width, putting the odd space on the right
func center(s string, width int) string {
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, s)
}

// tableWriter renders report entries in the fixed-width column layout
type tableWriter struct {
	w           io.Writer
	mode        string
	withResults bool
}

func (t *tableWriter) width() int {
	if t.withResults {
		return tableWidth + resultWidth
	}
	return tableWidth
}

func (t *tableWriter) header() {
	sep := strings.Repeat("=", t.width())
	fmt.Fprintln(t.w, sep)
	line := fmt.Sprintf("%s|%s|%s|%s|%s", center("option name", 40), center("type", 7),
		center("desired val", 12), center("decision", 10), center("reason", 18))
	if t.withResults {
		line += "| check result"
	}
	fmt.Fprintln(t.w, line)
	fmt.Fprintln(t.w, sep)
}

func (t *tableWriter) result(e models.ReportEntry) string {
	if !t.withResults {
		return ""
	}
	style := styleFail
	if e.CheckResultBool != nil && *e.CheckResultBool {
		style = styleOK
	}
	return "| " + style.Render(e.CheckResult)
}

func (t *tableWriter) row(e models.ReportEntry) {
	fmt.Fprintf(t.w, "%-40s|%s|%s|%s|%s%s\n", e.OptionName, center(e.Type, 7), center(e.DesiredVal, 12),
		center(e.Decision, 10), center(e.Reason, 18), t.result(e))
}

// entry prints one top-level entry; composites expand in verbose mode
func (t *tableWriter) entry(e models.ReportEntry) {
	if t.mode != modeVerbose || len(e.Children) == 0 {
		t.row(e)
		return
	}
	fmt.Fprintf(t.w, "    %-*s%s\n", bannerWidth, "<<< "+e.Type+" >>>", t.result(e))
	for _, c := range e.Children {
		t.entry(c)
	}
}

func (t *tableWriter) body(entries []models.ReportEntry) {
	for _, e := range entries {
		t.entry(e)
		if t.mode == modeVerbose {
			fmt.Fprintln(t.w, strings.Repeat("-", t.width()))
		}
	}
	fmt.Fprintln(t.w)
}

// selectEntries applies the show_ok/show_fail filters
func selectEntries(rep *models.CheckReport, mode string) []models.ReportEntry {
	var out []models.ReportEntry
	for _, e := range rep.Results {
		ok := e.CheckResultBool != nil && *e.CheckResultBool
		switch {
		case mode == modeShowOK && !ok:
			continue
		case mode == modeShowFail && ok:
			continue
		}
		out = append(out, e)
	}
	return out
}

// FormatCheckTable renders a report as the text table plus the final score
func FormatCheckTable(w io.Writer, rep *models.CheckReport, mode string) {
	t := &tableWriter{w: w, mode: mode, withResults: true}
	t.header()
	t.body(selectEntries(rep, mode))

	var okSuppressed, failSuppressed string
	switch mode {
	case modeShowOK:
		failSuppressed = " (suppressed in output)"
	case modeShowFail:
		okSuppressed = " (suppressed in output)"
	}
	fmt.Fprintf(w, "[+] Config check is finished: 'OK' - %d%s / 'FAIL' - %d%s\n",
		rep.Summary.OK, okSuppressed, rep.Summary.Fail, failSuppressed)
}

// FormatCatalogueTable renders rules without results for print mode
func FormatCatalogueTable(w io.Writer, entries []models.ReportEntry, mode string) {
	t := &tableWriter{w: w, mode: mode}
	t.header()
	t.body(entries)
}

// FormatJSON writes v as indented JSON
func FormatJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatGateResults prints policy rule outcomes under the table
func FormatGateResults(w io.Writer, config *models.PolicyConfig, results []models.PolicyResult, status policy.GateStatus) {
	fmt.Fprintf(w, "\n%s %s (mode: %s)\n", styleBold.Render("Policy:"), config.Name, gateMode(config))
	fmt.Fprintln(w, "Results:")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, r := range results {
		switch {
		case r.Passed:
			fmt.Fprintf(w, "%s %s\n", styleOK.Render("✓"), r.RuleName)
		case r.Severity == models.PolicySeverityWarn:
			fmt.Fprintf(w, "%s %s\n", styleWarn.Render("⚠"), r.RuleName)
			fmt.Fprintf(w, "  → %s\n", r.FailureMsg)
		default:
			fmt.Fprintf(w, "%s %s\n", styleFail.Render("✗"), r.RuleName)
			fmt.Fprintf(w, "  → %s\n", r.FailureMsg)
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 50))

	switch status {
	case policy.GatePass:
		fmt.Fprintln(w, styleOK.Render("[+] Policy gate: PASS"))
	case policy.GateWarn:
		fmt.Fprintln(w, styleWarn.Render("[+] Policy gate: PASS with warnings"))
	default:
		fmt.Fprintln(w, styleFail.Render("[-] Policy gate: FAIL"))
	}
}

func gateMode(config *models.PolicyConfig) models.PolicyMode {
	if config.Mode == "" {
		return models.PolicyModeStrict
	}
	return config.Mode
}

// gateDecision summarises policy results for the JSON report
func gateDecision(config *models.PolicyConfig, results []models.PolicyResult, status policy.GateStatus) *models.GateDecision {
	d := &models.GateDecision{Policy: config.Name, Status: string(status)}
	for _, r := range results {
		if !r.Passed {
			d.Reasons = append(d.Reasons, fmt.Sprintf("%s (%s): %s", r.RuleName, r.Severity, r.FailureMsg))
		}
	}
	return d
}
