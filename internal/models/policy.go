package models

// PolicyMode decides whether warnings fail a gate
type PolicyMode string

const (
	PolicyModeWarn   PolicyMode = "warn"
	PolicyModeStrict PolicyMode = "strict"
)

// PolicySeverity per rule
type PolicySeverity string

const (
	PolicySeverityWarn  PolicySeverity = "warn"
	PolicySeverityError PolicySeverity = "error"
)

// PolicyConfig from yaml
type PolicyConfig struct {
	Name  string       `yaml:"name" json:"name"`
	Mode  PolicyMode   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Rules []PolicyRule `yaml:"rules" json:"rules"`
}

// PolicyRule cel rule
type PolicyRule struct {
	Name        string         `yaml:"name" json:"name"`
	Expr        string         `yaml:"expr" json:"expr"`
	FailureMsg  string         `yaml:"failure_msg" json:"failure_msg"`
	Severity    PolicySeverity `yaml:"severity,omitempty" json:"severity,omitempty"`
	ControlRefs []string       `yaml:"control_refs,omitempty" json:"control_refs,omitempty"`

	Evidence         []string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
	EvidenceCommands []string `yaml:"evidence_commands,omitempty" json:"evidence_commands,omitempty"`
}

// EffectiveSeverity defaults to error
func (r PolicyRule) EffectiveSeverity() PolicySeverity {
	if r.Severity == "" {
		return PolicySeverityError
	}
	return r.Severity
}

// PolicyResult eval result
type PolicyResult struct {
	RuleName   string
	Passed     bool
	FailureMsg string
	Severity   PolicySeverity
}
