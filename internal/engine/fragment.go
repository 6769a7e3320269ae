package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/khcheck/khcheck/internal/models"
)

// FragmentLine is one Kconfig fragment entry
type FragmentLine struct {
	Symbol string
	Value  string
}

func (l FragmentLine) String() string {
	if l.Value == models.DesiredAbsent {
		return fmt.Sprintf("# %s is not set", l.Symbol)
	}
	return l.Symbol + "=" + l.Value
}

// Fragment inverts the catalogue into Kconfig lines for arch. The first line
// selects the architecture itself.
func Fragment(src RuleSource, arch models.Arch) ([]FragmentLine, error) {
	rules, err := src.RulesFor(arch)
	if err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}

	lines := []FragmentLine{{Symbol: "CONFIG_" + string(arch), Value: "y"}}
	seen := map[string]struct{}{lines[0].Symbol: {}}
	for _, r := range rules {
		if r.Kind() == models.KindComposite || r.Domain != models.DomainConfig {
			continue
		}
		// refined from the checked config, so there is nothing fixed to emit
		if r.ValueFrom != "" {
			continue
		}
		if r.Desired == models.DesiredPresent || r.Desired == models.DesiredNotOff {
			continue
		}
		if _, dup := seen[r.Identifier]; dup {
			continue
		}
		seen[r.Identifier] = struct{}{}
		lines = append(lines, FragmentLine{Symbol: r.Identifier, Value: r.Desired})
	}
	return lines, nil
}

// WriteFragment renders lines one per row
func WriteFragment(w io.Writer, lines []FragmentLine) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
