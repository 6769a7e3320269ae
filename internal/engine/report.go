package engine

import (
	"fmt"

	"github.com/khcheck/khcheck/internal/models"
)

// RuleSource is satisfied by *catalogue.Catalogue
type RuleSource interface {
	RulesFor(arch models.Arch) ([]*models.Rule, error)
}

// Report collects the results of one run in catalogue order
type Report struct {
	Arch    models.Arch
	results []models.Result
	summary models.Summary
}

// Run evaluates every top-level rule applicable to arch
func Run(src RuleSource, arch models.Arch, state *models.State) (*Report, error) {
	rules, err := src.RulesFor(arch)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}

	rep := &Report{
		Arch:    arch,
		results: make([]models.Result, 0, len(rules)),
	}
	for _, r := range rules {
		res := Evaluate(r, state)
		if res.Passed() {
			rep.summary.OK++
		} else {
			rep.summary.Fail++
		}
		rep.results = append(rep.results, res)
	}
	rep.summary.Total = len(rep.results)
	return rep, nil
}

// Summary counts
func (r *Report) Summary() models.Summary {
	return r.summary
}

// All results without child detail
func (r *Report) All() []models.Result {
	out := make([]models.Result, len(r.results))
	for i, res := range r.results {
		res.Children = nil
		out[i] = res
	}
	return out
}

// Verbose returns all results with their children
func (r *Report) Verbose() []models.Result {
	out := make([]models.Result, len(r.results))
	copy(out, r.results)
	return out
}

// Failed view
func (r *Report) Failed() []models.Result {
	return r.filter(models.VerdictFail)
}

// Passed view
func (r *Report) Passed() []models.Result {
	return r.filter(models.VerdictPass)
}

func (r *Report) filter(v models.Verdict) []models.Result {
	var out []models.Result
	for _, res := range r.results {
		if res.Verdict == v {
			res.Children = nil
			out = append(out, res)
		}
	}
	return out
}

// Unchecked lists parsed keys that no rule for arch refers to, in input order
func Unchecked(src RuleSource, arch models.Arch, state *models.State) ([]models.ParsedKey, error) {
	rules, err := src.RulesFor(arch)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}

	known := map[models.Domain]map[string]struct{}{
		models.DomainConfig:  {},
		models.DomainCmdline: {},
	}
	for _, top := range rules {
		top.Walk(func(r *models.Rule) {
			if r.Identifier != "" {
				known[r.Domain][r.Identifier] = struct{}{}
			}
		})
	}

	var out []models.ParsedKey
	for _, k := range state.Keys() {
		if _, ok := known[k.Domain][k.Name]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}
