package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Domain selects which parsed map a rule reads
type Domain string

const (
	DomainConfig  Domain = "kconfig"
	DomainCmdline Domain = "cmdline"
)

// Arch is a supported target microarchitecture
type Arch string

const (
	ArchX8664 Arch = "X86_64"
	ArchX8632 Arch = "X86_32"
	ArchARM64 Arch = "ARM64"
	ArchARM   Arch = "ARM"
)

// SupportedArchs in display order
var SupportedArchs = []Arch{ArchX8664, ArchX8632, ArchARM64, ArchARM}

// ParseArch matches case-insensitively
func ParseArch(s string) (Arch, bool) {
	for _, a := range SupportedArchs {
		if strings.EqualFold(string(a), s) {
			return a, true
		}
	}
	return "", false
}

// Sentinel desired values. They keep the wording of the upstream checklist
// so that reports and catalogue files read the same.
const (
	DesiredAbsent  = "is not set"
	DesiredPresent = "is present"
	DesiredNotOff  = "is not off"
)

// IsSentinel reports whether v has bespoke matching semantics
func IsSentinel(v string) bool {
	switch v {
	case DesiredAbsent, DesiredPresent, DesiredNotOff:
		return true
	}
	return false
}

// Logic composes child rules
type Logic string

const (
	LogicNone Logic = ""
	LogicAND  Logic = "AND"
	LogicOR   Logic = "OR"
)

// Kind is the closed set of rule shapes
type Kind int

const (
	KindSimple Kind = iota
	KindComposite
	KindDependent
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindComposite:
		return "composite"
	case KindDependent:
		return "dependent"
	default:
		return "unknown"
	}
}

// Version is a kernel major.minor pair
type Version struct {
	Major int
	Minor int
}

// AtLeast compares lexicographically
func (v Version) AtLeast(floor Version) bool {
	if v.Major != floor.Major {
		return v.Major > floor.Major
	}
	return v.Minor >= floor.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion accepts "M.m" and ignores any further components
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("version %q: want major.minor", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: bad major: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("version %q: bad minor: %w", s, err)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Rule is one hardening recommendation.
//
// A rule is exactly one of: simple (Identifier + Desired), composite (Logic
// over Children) or dependent (Identifier + Desired gated on Dependency).
// Rules are built once by the catalogue loader and never mutated afterwards.
type Rule struct {
	ID            string
	Identifier    string
	Domain        Domain
	Architectures []Arch
	Desired       string
	Decision      string
	Reason        string
	VersionFloor  *Version
	Logic         Logic
	Children      []*Rule
	Dependency    *Rule

	// ValueFrom names a config symbol whose value, when set, replaces Desired.
	ValueFrom string
}

// Kind classifies the rule for the evaluator
func (r *Rule) Kind() Kind {
	switch {
	case r.Logic != LogicNone:
		return KindComposite
	case r.Dependency != nil:
		return KindDependent
	default:
		return KindSimple
	}
}

// AppliesTo reports whether arch is in the rule's target set
func (r *Rule) AppliesTo(arch Arch) bool {
	for _, a := range r.Architectures {
		if a == arch {
			return true
		}
	}
	return false
}

// Name is the display name; composites borrow the first child's
func (r *Rule) Name() string {
	if r.Kind() == KindComposite && len(r.Children) > 0 {
		return r.Children[0].Name()
	}
	return r.Identifier
}

// DisplayDesired is the desired column of reports
func (r *Rule) DisplayDesired() string {
	if r.Kind() == KindComposite && len(r.Children) > 0 {
		return r.Children[0].DisplayDesired()
	}
	return r.Desired
}

// DisplayDomain is the type column of reports
func (r *Rule) DisplayDomain() string {
	switch r.Kind() {
	case KindComposite:
		return string(r.Logic)
	default:
		return string(r.Domain)
	}
}

// Walk visits r, its children and its dependency chain depth-first
func (r *Rule) Walk(fn func(*Rule)) {
	fn(r)
	for _, c := range r.Children {
		c.Walk(fn)
	}
	if r.Dependency != nil {
		r.Dependency.Walk(fn)
	}
}
