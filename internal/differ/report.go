// Package differ compares two JSON check reports rule by rule.
package differ

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/khcheck/khcheck/internal/models"
)

// ErrArchMismatch means the reports were produced for different targets
var ErrArchMismatch = errors.New("reports are for different architectures")

// ChangeType classifies one rule difference
type ChangeType string

const (
	ChangeRegression  ChangeType = "regression"
	ChangeImprovement ChangeType = "improvement"
	ChangeAdded       ChangeType = "added"
	ChangeRemoved     ChangeType = "removed"
	ChangeRule        ChangeType = "rule_changed"
	ChangeDetail      ChangeType = "detail_changed"
)

// RuleChange is one entry of a diff
type RuleChange struct {
	ID         string         `json:"id"`
	OptionName string         `json:"option_name"`
	Type       ChangeType     `json:"type"`
	Severity   string         `json:"severity"`
	Old        string         `json:"old,omitempty"`
	New        string         `json:"new,omitempty"`
	Message    string         `json:"message"`
	Patch      jsondiff.Patch `json:"patch,omitempty"`

	level SeverityLevel
}

// Level is the numeric severity
func (c RuleChange) Level() SeverityLevel { return c.level }

// Result of comparing two reports
type Result struct {
	HasChanges bool           `json:"has_changes"`
	Arch       models.Arch    `json:"arch"`
	OldSummary models.Summary `json:"old_summary"`
	NewSummary models.Summary `json:"new_summary"`
	Changes    []RuleChange   `json:"changes"`
}

// Regressions counts PASS to FAIL transitions
func (r *Result) Regressions() int {
	n := 0
	for _, c := range r.Changes {
		if c.Type == ChangeRegression {
			n++
		}
	}
	return n
}

// MaxSeverity across all changes, SeverityInfo when there are none
func (r *Result) MaxSeverity() SeverityLevel {
	max := SeverityInfo
	for _, c := range r.Changes {
		if c.level > max {
			max = c.level
		}
	}
	return max
}

// LoadReport reads a report written by `check --mode json`
func LoadReport(path string) (*models.CheckReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	rep, err := ParseReport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

// ParseReport decodes and sanity checks one report
func ParseReport(r io.Reader) (*models.CheckReport, error) {
	var rep models.CheckReport
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if rep.SchemaVersion != models.ReportSchemaVersion {
		return nil, fmt.Errorf("unsupported report schema_version %q (want %q)", rep.SchemaVersion, models.ReportSchemaVersion)
	}
	return &rep, nil
}

// Compare walks the new report in order, then appends rules that only the
// old report had.
func Compare(old, cur *models.CheckReport) (*Result, error) {
	if old.Arch != cur.Arch {
		return nil, fmt.Errorf("%w: %s vs %s", ErrArchMismatch, old.Arch, cur.Arch)
	}

	result := &Result{
		Arch:       cur.Arch,
		OldSummary: old.Summary,
		NewSummary: cur.Summary,
		Changes:    []RuleChange{},
	}

	oldKeys := entryKeys(old.Results)
	oldByKey := make(map[string]models.ReportEntry, len(old.Results))
	for i, e := range old.Results {
		oldByKey[oldKeys[i]] = e
	}
	seen := make(map[string]bool, len(cur.Results))

	for i, key := range entryKeys(cur.Results) {
		e := cur.Results[i]
		seen[key] = true
		prev, ok := oldByKey[key]
		if !ok {
			result.Changes = append(result.Changes, newChange(e, ChangeAdded, SeverityModerate, "", e.CheckResult,
				"New check"))
			continue
		}
		change, err := compareEntry(prev, e)
		if err != nil {
			return nil, fmt.Errorf("failed to compare %s: %w", e.ID, err)
		}
		if change != nil {
			result.Changes = append(result.Changes, *change)
		}
	}

	var removed []RuleChange
	for i, e := range old.Results {
		if seen[oldKeys[i]] {
			continue
		}
		removed = append(removed, newChange(e, ChangeRemoved, SeverityModerate, e.CheckResult, "",
			"Check no longer performed"))
	}
	sort.SliceStable(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	result.Changes = append(result.Changes, removed...)

	result.HasChanges = len(result.Changes) > 0
	return result, nil
}

// entryKeys pairs entries across reports. The catalogue may check one
// symbol in several top-level rules, so repeats are keyed by occurrence.
func entryKeys(entries []models.ReportEntry) []string {
	keys := make([]string, len(entries))
	count := map[string]int{}
	for i, e := range entries {
		count[e.ID]++
		keys[i] = e.ID
		if n := count[e.ID]; n > 1 {
			keys[i] = fmt.Sprintf("%s#%d", e.ID, n)
		}
	}
	return keys
}

func compareEntry(prev, cur models.ReportEntry) (*RuleChange, error) {
	patch, err := jsondiff.Compare(prev, cur)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, nil
	}

	var c RuleChange
	wasOK, isOK := passed(prev), passed(cur)
	switch {
	case wasOK && !isOK:
		c = newChange(cur, ChangeRegression, SeverityCritical, prev.CheckResult, cur.CheckResult,
			"Hardening regressed")
	case !wasOK && isOK:
		c = newChange(cur, ChangeImprovement, SeverityInfo, prev.CheckResult, cur.CheckResult,
			"Hardening improved")
	case touches(patch, "/desired_val", "/decision", "/reason", "/type"):
		c = newChange(cur, ChangeRule, SeverityModerate, prev.DesiredVal, cur.DesiredVal,
			"Recommendation changed")
	default:
		c = newChange(cur, ChangeDetail, SeverityInfo, prev.CheckResult, cur.CheckResult,
			"Check result detail changed")
	}
	c.Patch = patch
	return &c, nil
}

func newChange(e models.ReportEntry, t ChangeType, level SeverityLevel, old, cur, msg string) RuleChange {
	return RuleChange{
		ID:         e.ID,
		OptionName: e.OptionName,
		Type:       t,
		Severity:   level.String(),
		Old:        old,
		New:        cur,
		Message:    msg,
		level:      level,
	}
}

func passed(e models.ReportEntry) bool {
	if e.CheckResultBool != nil {
		return *e.CheckResultBool
	}
	return strings.HasPrefix(e.CheckResult, "OK")
}

// touches reports whether any operation targets one of the top-level fields
func touches(patch jsondiff.Patch, fields ...string) bool {
	for _, op := range patch {
		p := string(op.Path)
		for _, f := range fields {
			if p == f {
				return true
			}
		}
	}
	return false
}
