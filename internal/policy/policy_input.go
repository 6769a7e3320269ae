package policy

import (
	"github.com/khcheck/khcheck/internal/engine"
	"github.com/khcheck/khcheck/internal/models"
)

// Input is what CEL expressions see as `input`
type Input struct {
	Arch          string         `json:"arch"`
	KernelVersion string         `json:"kernel_version"`
	Compiler      string         `json:"compiler"`
	Summary       models.Summary `json:"summary"`
	Results       []ResultInput  `json:"results"`
}

// ResultInput is one top-level check
type ResultInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Verdict  string `json:"verdict"`
	Detail   string `json:"detail"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// BuildInput flattens a report in catalogue order
func BuildInput(rep *engine.Report, state *models.State) Input {
	in := Input{
		Arch:    string(rep.Arch),
		Summary: rep.Summary(),
		Results: []ResultInput{},
	}
	if state != nil {
		if v := state.KernelVersion(); v != nil {
			in.KernelVersion = v.String()
		}
		in.Compiler = state.Compiler()
	}

	for _, res := range rep.All() {
		in.Results = append(in.Results, ResultInput{
			ID:       res.Rule.ID,
			Name:     res.Rule.Name(),
			Type:     res.Rule.DisplayDomain(),
			Verdict:  string(res.Verdict),
			Detail:   res.Detail,
			Decision: res.Rule.Decision,
			Reason:   res.Rule.Reason,
		})
	}
	return in
}

// ToMap converts for CEL
func (in Input) ToMap() map[string]any {
	results := make([]any, len(in.Results))
	for i, r := range in.Results {
		results[i] = map[string]any{
			"id":       r.ID,
			"name":     r.Name,
			"type":     r.Type,
			"verdict":  r.Verdict,
			"detail":   r.Detail,
			"decision": r.Decision,
			"reason":   r.Reason,
		}
	}

	return map[string]any{
		"arch":           in.Arch,
		"kernel_version": in.KernelVersion,
		"compiler":       in.Compiler,
		"summary": map[string]any{
			"ok":    int64(in.Summary.OK),
			"fail":  int64(in.Summary.Fail),
			"total": int64(in.Summary.Total),
		},
		"results": results,
	}
}
