// Package receipt writes a JSON audit record of each khcheck invocation.
package receipt

const ReceiptSchemaVersion = "1.0"

// Receipt is one invocation record
type Receipt struct {
	SchemaVersion string         `json:"schema_version"`
	OpID          string         `json:"op_id"`
	Tool          ToolInfo       `json:"tool"`
	TsStart       string         `json:"ts_start"`
	TsEnd         string         `json:"ts_end"`
	DurationMS    int64          `json:"duration_ms"`
	Command       string         `json:"command"`
	Args          []string       `json:"args"`
	ArgsRedacted  bool           `json:"args_redacted,omitempty"`
	Result        Result         `json:"result"`
	Inputs        []InputRef     `json:"inputs,omitempty"`
	Target        *TargetSummary `json:"target,omitempty"`
	Check         *CheckSummary  `json:"check,omitempty"`
	Drift         *DriftSummary  `json:"drift,omitempty"`
	Policy        *PolicySummary `json:"policy,omitempty"`
}

// ToolInfo identifies the khcheck build that ran
type ToolInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
}

// Result status
type Result struct {
	Status string `json:"status"` // success|fail
	Error  string `json:"error,omitempty"`
}

// InputRef is a file the run read
type InputRef struct {
	Kind   string `json:"kind"` // kconfig|cmdline|report|policy
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	// Digest of the image for oci:// inputs
	Digest string `json:"digest,omitempty"`
}

// TargetSummary is what was detected about the kernel
type TargetSummary struct {
	Arch          string `json:"arch"`
	KernelVersion string `json:"kernel_version,omitempty"`
	Compiler      string `json:"compiler,omitempty"`
}

// CheckSummary mirrors the final report line
type CheckSummary struct {
	OK    int `json:"ok"`
	Fail  int `json:"fail"`
	Total int `json:"total"`
}

// DriftSummary of a report diff
type DriftSummary struct {
	Regressions  int    `json:"regressions"`
	Improvements int    `json:"improvements"`
	Other        int    `json:"other"`
	Summary      string `json:"summary,omitempty"`
}

// PolicySummary is the gate outcome
type PolicySummary struct {
	Preset   string    `json:"preset,omitempty"`
	Status   string    `json:"status"` // pass|warn|fail
	RulesHit []RuleHit `json:"rules_hit,omitempty"`
}

// RuleHit is a failed policy rule
type RuleHit struct {
	Name        string   `json:"name"`
	Severity    string   `json:"severity"` // warn|error
	ControlRefs []string `json:"control_refs,omitempty"`
}
