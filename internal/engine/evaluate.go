// Package engine resolves hardening rules against a parsed kernel state.
package engine

import (
	"fmt"
	"strings"

	"github.com/khcheck/khcheck/internal/models"
)

const (
	detailNotFound   = "is not found"
	detailNotPresent = "is not present"
	detailIsOff      = `is "off"`
	blockedValue     = "off"
)

// Evaluate resolves one rule. It never fails: malformed rules are rejected by
// the catalogue loader before evaluation starts.
func Evaluate(rule *models.Rule, state *models.State) models.Result {
	if floor := rule.VersionFloor; floor != nil {
		if v := state.KernelVersion(); v != nil && v.AtLeast(*floor) {
			return models.Result{
				Rule:    rule,
				Verdict: models.VerdictPass,
				Detail:  "version >= " + floor.String(),
			}
		}
	}

	switch rule.Kind() {
	case models.KindDependent:
		dep := Evaluate(rule.Dependency, state)
		if !dep.Passed() {
			return models.Result{
				Rule:    rule,
				Verdict: models.VerdictFail,
				Detail:  fmt.Sprintf("%s is not %q", rule.Dependency.Name(), desiredFor(rule.Dependency, state)),
			}
		}
		return evaluateDirect(rule, state)
	case models.KindComposite:
		return evaluateComposite(rule, state)
	default:
		return evaluateDirect(rule, state)
	}
}

// evaluateComposite resolves every child; verbose reports need all of them
func evaluateComposite(rule *models.Rule, state *models.State) models.Result {
	children := make([]models.Result, 0, len(rule.Children))
	passed := 0
	for _, c := range rule.Children {
		res := Evaluate(c, state)
		if res.Passed() {
			passed++
		}
		children = append(children, res)
	}

	ok := false
	switch rule.Logic {
	case models.LogicAND:
		ok = passed == len(children)
	case models.LogicOR:
		ok = passed > 0
	}

	return models.Result{
		Rule:     rule,
		Verdict:  verdict(ok),
		Children: children,
	}
}

func evaluateDirect(rule *models.Rule, state *models.State) models.Result {
	actual, present := state.Lookup(rule.Domain, rule.Identifier)
	seen := state.Seen(rule.Domain, rule.Identifier)
	res := models.Result{Rule: rule}

	switch desired := desiredFor(rule, state); desired {
	case models.DesiredAbsent:
		if !present {
			res.Verdict = models.VerdictPass
			if !seen {
				res.Detail = detailNotFound
			}
			return res
		}
		res.Verdict = models.VerdictFail
		res.Detail = quote(actual)
	case models.DesiredPresent:
		if present {
			res.Verdict = models.VerdictPass
			return res
		}
		res.Verdict = models.VerdictFail
		res.Detail = detailNotPresent
	case models.DesiredNotOff:
		if !present {
			res.Verdict = models.VerdictPass
			res.Detail = detailNotFound
			return res
		}
		if strings.TrimSpace(actual) == blockedValue {
			res.Verdict = models.VerdictFail
			res.Detail = detailIsOff
			return res
		}
		res.Verdict = models.VerdictPass
	default:
		if !present {
			res.Verdict = models.VerdictFail
			res.Detail = detailNotFound
			return res
		}
		if strings.TrimSpace(actual) == strings.TrimSpace(desired) {
			res.Verdict = models.VerdictPass
			return res
		}
		res.Verdict = models.VerdictFail
		res.Detail = quote(actual)
	}
	return res
}

// desiredFor applies the ValueFrom refinement; composites report their first child's
func desiredFor(rule *models.Rule, state *models.State) string {
	if rule.Kind() == models.KindComposite && len(rule.Children) > 0 {
		return desiredFor(rule.Children[0], state)
	}
	if rule.ValueFrom != "" {
		if v, ok := state.Config(rule.ValueFrom); ok && v != "" {
			return v
		}
	}
	return rule.Desired
}

func verdict(ok bool) models.Verdict {
	if ok {
		return models.VerdictPass
	}
	return models.VerdictFail
}

func quote(s string) string {
	return `"` + s + `"`
}
