package policy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/khcheck/khcheck/internal/models"
)

// maxEvalCost bounds one rule evaluation; a catalogue-sized report costs
// a few thousand units
const maxEvalCost = 1_000_000

// Engine evaluates policy rules with CEL. Compiled programs are cached
// per expression, so one engine can gate many reports.
type Engine struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env, programs: map[string]cel.Program{}}, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %v", issues.Err())
	}
	prg, err := e.env.Program(ast, cel.CostLimit(maxEvalCost))
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %v", err)
	}
	e.programs[expr] = prg
	return prg, nil
}

// Evaluate runs every rule of config against one check input
func (e *Engine) Evaluate(config *models.PolicyConfig, input Input) ([]models.PolicyResult, error) {
	results := make([]models.PolicyResult, 0, len(config.Rules))
	data := input.ToMap()

	for _, rule := range config.Rules {
		result, err := e.evaluateRule(rule, data)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate rule %q: %w", rule.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (e *Engine) evaluateRule(rule models.PolicyRule, input map[string]any) (models.PolicyResult, error) {
	failed := func(msg string) models.PolicyResult {
		return models.PolicyResult{
			RuleName:   rule.Name,
			FailureMsg: msg,
			Severity:   rule.EffectiveSeverity(),
		}
	}

	prg, err := e.program(rule.Expr)
	if err != nil {
		return failed(err.Error()), nil
	}

	out, _, err := prg.Eval(map[string]any{"input": input})
	if err != nil {
		return failed(fmt.Sprintf("CEL evaluation error: %v", err)), nil
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return failed(fmt.Sprintf("Rule expression must return boolean, got %T", out.Value())), nil
	}

	result := models.PolicyResult{
		RuleName: rule.Name,
		Passed:   passed,
		Severity: rule.EffectiveSeverity(),
	}
	if !passed {
		result.FailureMsg = rule.FailureMsg
	}
	return result, nil
}

// CompileAndValidate reports every rule that does not compile
func (e *Engine) CompileAndValidate(config *models.PolicyConfig) error {
	var errs []string

	for _, rule := range config.Rules {
		if rule.Severity != "" && rule.Severity != models.PolicySeverityWarn && rule.Severity != models.PolicySeverityError {
			errs = append(errs, fmt.Sprintf("rule %q: unknown severity %q", rule.Name, rule.Severity))
			continue
		}
		ast, issues := e.env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			errs = append(errs, fmt.Sprintf("rule %q: %v", rule.Name, issues.Err()))
			continue
		}
		switch t := ast.OutputType(); t {
		case cel.BoolType:
		case cel.DynType:
			// fields of input are dyn; run the rule once to learn its result type
			if got := e.dryRun(rule.Expr); got != "" && got != "bool" {
				errs = append(errs, fmt.Sprintf("rule %q: expression returns %s, want bool", rule.Name, got))
			}
		default:
			errs = append(errs, fmt.Sprintf("rule %q: expression returns %s, want bool", rule.Name, t))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("policy validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// sampleInput has one row of every field so dry runs can index results
var sampleInput = Input{
	Arch:          string(models.ArchX8664),
	KernelVersion: "6.6",
	Compiler:      "GCC 13.2.0",
	Summary:       models.Summary{OK: 1, Fail: 1, Total: 2},
	Results: []ResultInput{
		{ID: "CONFIG_BUG", Name: "CONFIG_BUG", Type: "kconfig", Verdict: string(models.VerdictPass), Decision: "defconfig", Reason: "self_protection"},
		{ID: "CONFIG_KEXEC", Name: "CONFIG_KEXEC", Type: "kconfig", Verdict: string(models.VerdictFail), Detail: `"y"`, Decision: "kspp", Reason: "cut_attack_surface"},
	},
}

// dryRun returns the type name of expr's value over sampleInput, or "" when
// it cannot be evaluated there
func (e *Engine) dryRun(expr string) string {
	prg, err := e.program(expr)
	if err != nil {
		return ""
	}
	out, _, err := prg.Eval(map[string]any{"input": sampleInput.ToMap()})
	if err != nil {
		return ""
	}
	return out.Type().TypeName()
}

// GateStatus is the overall outcome of a policy run
type GateStatus string

const (
	GatePass GateStatus = "pass"
	GateWarn GateStatus = "warn"
	GateFail GateStatus = "fail"
)

// Gate folds rule results into one status. Failed warn-severity rules only
// fail the gate in strict mode, which is the default.
func Gate(mode models.PolicyMode, results []models.PolicyResult) GateStatus {
	hasErrors, hasWarnings := false, false
	for _, r := range results {
		if r.Passed {
			continue
		}
		if r.Severity == models.PolicySeverityWarn {
			hasWarnings = true
		} else {
			hasErrors = true
		}
	}

	switch {
	case hasErrors:
		return GateFail
	case hasWarnings && mode == models.PolicyModeWarn:
		return GateWarn
	case hasWarnings:
		return GateFail
	default:
		return GatePass
	}
}
