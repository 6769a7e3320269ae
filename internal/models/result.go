package models

// Verdict of one rule
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Result of resolving one rule against a State
type Result struct {
	Rule     *Rule
	Verdict  Verdict
	Detail   string
	Children []Result
}

// Passed shortcut
func (r Result) Passed() bool {
	return r.Verdict == VerdictPass
}

// Status renders the check result column, e.g. `OK: is not found` or `FAIL: "m"`
func (r Result) Status() string {
	label := "OK"
	if !r.Passed() {
		label = "FAIL"
	}
	if r.Detail == "" {
		return label
	}
	return label + ": " + r.Detail
}

// Summary counts
type Summary struct {
	OK    int `json:"ok"`
	Fail  int `json:"fail"`
	Total int `json:"total"`
}
