package differ

import (
	"fmt"
	"strings"
)

// SeverityLevel orders changes; --fail-on compares against it
type SeverityLevel int

const (
	SeverityInfo SeverityLevel = iota
	SeverityModerate
	SeverityCritical
)

var severityNames = [...]string{"info", "moderate", "critical"}

func (s SeverityLevel) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity accepts the lowercase names in any case
func ParseSeverity(s string) (SeverityLevel, error) {
	for i, name := range severityNames {
		if strings.EqualFold(s, name) {
			return SeverityLevel(i), nil
		}
	}
	return 0, fmt.Errorf("invalid severity %q (use critical, moderate, or info)", s)
}
