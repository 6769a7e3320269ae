package catalogue

import (
	"fmt"

	"github.com/khcheck/khcheck/internal/models"
)

// ValidationError pinpoints a malformed rule
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRule
}

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// validate enforces the rule invariants recursively
func validate(r *models.Rule, p string) error {
	if len(r.Architectures) == 0 {
		return invalid(p, "no architectures")
	}
	for _, a := range r.Architectures {
		if !supported(a) {
			return invalid(p, "unknown architecture %q", a)
		}
	}

	switch r.Logic {
	case models.LogicNone:
		if r.Identifier == "" {
			return invalid(p, "missing identifier")
		}
		if r.Domain != models.DomainConfig && r.Domain != models.DomainCmdline {
			return invalid(p, "unknown domain %q", r.Domain)
		}
		if r.Desired == "" && r.ValueFrom == "" {
			return invalid(p, "%s: missing desired value", r.Identifier)
		}
		if r.Desired == models.DesiredPresent && r.Domain != models.DomainCmdline {
			return invalid(p, "%s: %q only applies to cmdline parameters", r.Identifier, models.DesiredPresent)
		}
		if len(r.Children) > 0 {
			return invalid(p, "%s: simple rule with children", r.Identifier)
		}
	case models.LogicAND, models.LogicOR:
		if r.Dependency != nil {
			return invalid(p, "composite rule cannot also have a dependency")
		}
		if len(r.Children) < 2 {
			return invalid(p, "%s needs at least 2 children, got %d", r.Logic, len(r.Children))
		}
		if r.Identifier != "" {
			return invalid(p, "composite rule cannot check %s itself", r.Identifier)
		}
		for i, c := range r.Children {
			if err := validate(c, fmt.Sprintf("%s.%d", p, i)); err != nil {
				return err
			}
		}
	default:
		return invalid(p, "unknown logic %q", r.Logic)
	}

	if r.Dependency != nil {
		if err := validate(r.Dependency, p+".depends_on"); err != nil {
			return err
		}
	}
	return nil
}

// checkCycles rejects dependency chains that loop back on themselves
func checkCycles(rules []*models.Rule) error {
	const (
		visiting = 1
		done     = 2
	)
	state := map[*models.Rule]int{}

	var visit func(r *models.Rule) error
	visit = func(r *models.Rule) error {
		switch state[r] {
		case visiting:
			return invalid(r.ID, "dependency cycle")
		case done:
			return nil
		}
		state[r] = visiting
		for _, c := range r.Children {
			if err := visit(c); err != nil {
				return err
			}
		}
		if r.Dependency != nil {
			if err := visit(r.Dependency); err != nil {
				return err
			}
		}
		state[r] = done
		return nil
	}

	for _, r := range rules {
		if err := visit(r); err != nil {
			return err
		}
	}
	return nil
}
