package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/khcheck/khcheck/internal/models"
	"github.com/khcheck/khcheck/internal/policy"
)

// policyExplainCmd documents what a gate policy enforces
var policyExplainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Output policy rules with compliance metadata",
	Long: `Display gate policy rules with the checks they inspect, their control
references, evidence and evidence commands, as Markdown or JSON.

Example:
  khcheck policy explain --preset kspp
  khcheck policy explain --preset self-protection --json
  khcheck policy explain --policy ./my-policy.yaml --output controls.md`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runPolicyExplain,
}

var (
	explainPreset string
	explainPolicy string
	explainJSON   bool
	explainOutput string
)

func init() {
	f := policyExplainCmd.Flags()
	f.StringVar(&explainPreset, "preset", "", "Built-in preset: none, strict, self-protection, or kspp (default kspp)")
	f.StringVar(&explainPolicy, "policy", "", "Path to policy YAML file")
	f.BoolVar(&explainJSON, "json", false, "Output JSON instead of Markdown")
	f.StringVar(&explainOutput, "output", "", "Write output to file (default: stdout)")
	policyExplainCmd.MarkFlagsMutuallyExclusive("preset", "policy")
	policyCmd.AddCommand(policyExplainCmd)
}

// ExplainOutput is the JSON document; Markdown renders the same data
type ExplainOutput struct {
	SchemaVersion string        `json:"schema_version"`
	Policy        string        `json:"policy"`
	Source        ExplainSource `json:"source"`
	Mode          string        `json:"mode"`
	GeneratedAt   string        `json:"generated_at"`
	Rules         []ExplainRule `json:"rules"`
}

// ExplainSource is a preset name or a file path
type ExplainSource struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ExplainRule lists are never null in JSON
type ExplainRule struct {
	Name             string   `json:"name"`
	Severity         string   `json:"severity"`
	Expr             string   `json:"expr"`
	FailureMsg       string   `json:"failure_msg"`
	Checks           []string `json:"checks"`
	ControlRefs      []string `json:"control_refs"`
	Evidence         []string `json:"evidence"`
	EvidenceCommands []string `json:"evidence_commands"`
}

func runPolicyExplain(cmd *cobra.Command, args []string) error {
	config, source, err := explainTarget()
	if err != nil {
		return err
	}
	doc := buildExplain(config, source)

	out := cmd.OutOrStdout()
	if explainOutput != "" {
		f, err := os.Create(explainOutput)
		if err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if explainJSON {
		err = FormatJSON(out, doc)
	} else {
		err = writeExplainMarkdown(out, doc)
	}
	if err != nil {
		return err
	}
	if explainOutput != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Output written to %s\n", explainOutput)
	}
	return nil
}

func explainTarget() (*models.PolicyConfig, ExplainSource, error) {
	if explainPolicy != "" {
		config, err := policy.LoadFile(explainPolicy)
		return config, ExplainSource{Type: "file", Name: explainPolicy}, err
	}
	name := explainPreset
	if name == "" {
		name = "kspp"
	}
	config := policy.GetPreset(name)
	if config == nil {
		return nil, ExplainSource{}, fmt.Errorf("unknown preset: %s (valid: %s)", name, strings.Join(policy.ListPresetNames(), ", "))
	}
	return config, ExplainSource{Type: "preset", Name: name}, nil
}

func buildExplain(config *models.PolicyConfig, source ExplainSource) ExplainOutput {
	doc := ExplainOutput{
		SchemaVersion: "1.0",
		Policy:        config.Name,
		Source:        source,
		Mode:          string(gateMode(config)),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Rules:         make([]ExplainRule, 0, len(config.Rules)),
	}
	for _, r := range config.Rules {
		doc.Rules = append(doc.Rules, ExplainRule{
			Name:             r.Name,
			Severity:         string(r.EffectiveSeverity()),
			Expr:             r.Expr,
			FailureMsg:       r.FailureMsg,
			Checks:           referencedChecks(r.Expr),
			ControlRefs:      orEmpty(r.ControlRefs),
			Evidence:         orEmpty(r.Evidence),
			EvidenceCommands: orEmpty(r.EvidenceCommands),
		})
	}
	return doc
}

// checkRef matches comparisons against a result's identity fields, e.g.
// r.name == "mitigations" or r.decision == "kspp"
var checkRef = regexp.MustCompile(`\.(id|name|decision|reason|type)\s*==\s*"([^"]+)"`)

// referencedChecks names the report rows a rule looks at; rules over the
// whole report (summary counts, arch) yield "*"
func referencedChecks(expr string) []string {
	seen := map[string]bool{}
	refs := []string{}
	for _, m := range checkRef.FindAllStringSubmatch(expr, -1) {
		ref := m[2]
		if m[1] != "id" && m[1] != "name" {
			ref = m[1] + "=" + m[2]
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		refs = append(refs, "*")
	}
	return refs
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func writeExplainMarkdown(w io.Writer, doc ExplainOutput) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Policy: %s\n\n", doc.Policy)
	fmt.Fprintf(&sb, "**Source**: %s (`%s`), **Mode**: %s\n\n", doc.Source.Type, doc.Source.Name, doc.Mode)
	sb.WriteString("| Rule | Severity | Checks | Control Refs | Evidence | Evidence Commands | Expr |\n")
	sb.WriteString("|------|----------|--------|--------------|----------|-------------------|------|\n")
	for _, r := range doc.Rules {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | `%s` |\n",
			r.Name, r.Severity, mdList(r.Checks), mdList(r.ControlRefs), mdList(r.Evidence),
			mdList(r.EvidenceCommands), escapeCell(shortExpr(r.Expr, 120)))
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func mdList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return escapeCell(strings.Join(items, ", "))
}

// escapeCell keeps CEL `||` from splitting table columns
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// shortExpr collapses whitespace and cuts at max runes
func shortExpr(expr string, max int) string {
	expr = strings.Join(strings.Fields(expr), " ")
	if r := []rune(expr); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return expr
}
