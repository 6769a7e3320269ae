package models

import "time"

// ReportSchemaVersion of the JSON check report
const ReportSchemaVersion = "1.0"

// CheckReport is the JSON form of one check run
type CheckReport struct {
	SchemaVersion string        `json:"schema_version"`
	Timestamp     time.Time     `json:"timestamp"`
	Arch          Arch          `json:"arch"`
	KernelVersion string        `json:"kernel_version,omitempty"`
	Compiler      string        `json:"compiler,omitempty"`
	ConfigPath    string        `json:"config,omitempty"`
	CmdlinePath   string        `json:"cmdline,omitempty"`
	Summary       Summary       `json:"summary"`
	Results       []ReportEntry `json:"results"`
	Gate          *GateDecision `json:"gate,omitempty"`
}

// GateDecision is the policy outcome attached to a report
type GateDecision struct {
	Policy  string   `json:"policy"`
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

// ReportEntry mirrors one row of the text table
type ReportEntry struct {
	ID              string        `json:"id"`
	OptionName      string        `json:"option_name"`
	Type            string        `json:"type"`
	DesiredVal      string        `json:"desired_val"`
	Decision        string        `json:"decision"`
	Reason          string        `json:"reason"`
	CheckResult     string        `json:"check_result,omitempty"`
	CheckResultBool *bool         `json:"check_result_bool,omitempty"`
	Children        []ReportEntry `json:"children,omitempty"`
}

// NewReportEntry without results, used by print mode
func NewReportEntry(r *Rule) ReportEntry {
	e := ReportEntry{
		ID:         r.ID,
		OptionName: r.Name(),
		Type:       r.DisplayDomain(),
		DesiredVal: r.DisplayDesired(),
		Decision:   r.Decision,
		Reason:     r.Reason,
	}
	for _, c := range r.Children {
		e.Children = append(e.Children, NewReportEntry(c))
	}
	return e
}

// NewResultEntry includes the check result; children only when verbose
func NewResultEntry(res Result, verbose bool) ReportEntry {
	e := NewReportEntry(res.Rule)
	e.Children = nil
	e.CheckResult = res.Status()
	ok := res.Passed()
	e.CheckResultBool = &ok
	if verbose {
		for _, c := range res.Children {
			e.Children = append(e.Children, NewResultEntry(c, true))
		}
	}
	return e
}
