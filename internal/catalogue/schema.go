package catalogue

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/khcheck/khcheck/internal/models"
	"gopkg.in/yaml.v3"
)

type document struct {
	name string
	data []byte
}

// fileSpec is the on-disk layout of a catalogue document
type fileSpec struct {
	Name          string     `yaml:"name"`
	Section       string     `yaml:"section"`
	Architectures []string   `yaml:"architectures"`
	Definitions   []ruleSpec `yaml:"definitions"`
	Rules         []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID        string     `yaml:"id"`
	Kconfig   string     `yaml:"kconfig"`
	Cmdline   string     `yaml:"cmdline"`
	Value     *string    `yaml:"value"`
	ValueFrom string     `yaml:"value_from"`
	Decision  string     `yaml:"decision"`
	Reason    string     `yaml:"reason"`
	Arch      []string   `yaml:"arch"`
	Since     string     `yaml:"since"`
	And       []ruleSpec `yaml:"and"`
	Or        []ruleSpec `yaml:"or"`
	DependsOn string     `yaml:"depends_on"`
}

// inherited carries the fields children take from their parent
type inherited struct {
	arch     []models.Arch
	decision string
	reason   string
}

type pendingDep struct {
	rule *models.Rule
	ref  string
	path string
}

type builder struct {
	byID    map[string]*models.Rule
	pending []pendingDep
}

func build(docs []document) (*Catalogue, error) {
	b := &builder{byID: map[string]*models.Rule{}}
	cat := &Catalogue{}

	for _, doc := range docs {
		var file fileSpec
		dec := yaml.NewDecoder(bytes.NewReader(doc.data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse catalogue %s: %w", doc.name, err)
		}
		if cat.name == "" {
			cat.name = file.Name
		}
		section := file.Section
		if section == "" {
			section = SectionKconfig
		}

		defaults := inherited{}
		for _, a := range file.Architectures {
			arch, ok := models.ParseArch(a)
			if !ok {
				return nil, invalid(doc.name+": architectures", "unknown architecture %q", a)
			}
			defaults.arch = append(defaults.arch, arch)
		}

		for i, rs := range file.Definitions {
			p := fmt.Sprintf("%s: definitions[%d]", doc.name, i)
			if rs.ID == "" {
				return nil, invalid(p, "definitions need an id")
			}
			if _, err := b.rule(rs, defaults, p); err != nil {
				return nil, err
			}
		}
		for i, rs := range file.Rules {
			p := fmt.Sprintf("%s: rules[%d]", doc.name, i)
			r, err := b.rule(rs, defaults, p)
			if err != nil {
				return nil, err
			}
			cat.entries = append(cat.entries, entry{section: section, rule: r})
		}
	}

	for _, pd := range b.pending {
		target, ok := b.byID[pd.ref]
		if !ok {
			return nil, invalid(pd.path, "depends_on %q does not name any rule", pd.ref)
		}
		pd.rule.Dependency = target
	}

	cat.byID = b.byID
	all := cat.Rules()
	for _, r := range b.byID {
		all = append(all, r)
	}
	if err := checkCycles(all); err != nil {
		return nil, err
	}
	for i, e := range cat.entries {
		if err := validate(e.rule, fmt.Sprintf("rules[%d] (%s)", i, e.rule.ID)); err != nil {
			return nil, err
		}
	}
	for id, r := range b.byID {
		if err := validate(r, "id "+id); err != nil {
			return nil, err
		}
	}
	if err := checkTopLevelIDs(cat.entries); err != nil {
		return nil, err
	}
	return cat, nil
}

// checkTopLevelIDs requires every arch to see each top-level id once,
// including ids a composite borrows from its first child
func checkTopLevelIDs(entries []entry) error {
	for _, arch := range models.SupportedArchs {
		seen := map[string]int{}
		for i, e := range entries {
			if !e.rule.AppliesTo(arch) {
				continue
			}
			if first, dup := seen[e.rule.ID]; dup {
				return invalid(fmt.Sprintf("rules[%d]", i), "duplicate top-level id %q for %s (first at rules[%d]); set an explicit id", e.rule.ID, arch, first)
			}
			seen[e.rule.ID] = i
		}
	}
	return nil
}

func (b *builder) rule(rs ruleSpec, parent inherited, p string) (*models.Rule, error) {
	cur := parent
	if rs.Decision != "" {
		cur.decision = rs.Decision
	}
	if rs.Reason != "" {
		cur.reason = rs.Reason
	}
	if len(rs.Arch) > 0 {
		cur.arch = nil
		for _, a := range rs.Arch {
			arch, ok := models.ParseArch(a)
			if !ok {
				return nil, invalid(p, "unknown architecture %q", a)
			}
			cur.arch = append(cur.arch, arch)
		}
	}

	r := &models.Rule{
		ID:            rs.ID,
		Architectures: append([]models.Arch(nil), cur.arch...),
		Decision:      cur.decision,
		Reason:        cur.reason,
		ValueFrom:     rs.ValueFrom,
	}

	if rs.Since != "" {
		v, err := models.ParseVersion(rs.Since)
		if err != nil {
			return nil, invalid(p, "since: %v", err)
		}
		r.VersionFloor = &v
	}

	switch {
	case len(rs.And) > 0 && len(rs.Or) > 0:
		return nil, invalid(p, "rule cannot be both and/or")
	case len(rs.And) > 0 || len(rs.Or) > 0:
		if rs.Kconfig != "" || rs.Cmdline != "" || rs.Value != nil || rs.ValueFrom != "" {
			return nil, invalid(p, "composite rule cannot check an option itself")
		}
		children, logic := rs.And, models.LogicAND
		if len(rs.Or) > 0 {
			children, logic = rs.Or, models.LogicOR
		}
		r.Logic = logic
		for i, cs := range children {
			c, err := b.rule(cs, cur, fmt.Sprintf("%s.%s[%d]", p, strings.ToLower(string(logic)), i))
			if err != nil {
				return nil, err
			}
			r.Children = append(r.Children, c)
		}
		if r.ID == "" && len(r.Children) > 0 {
			r.ID = r.Children[0].ID
		}
	default:
		switch {
		case rs.Kconfig != "" && rs.Cmdline != "":
			return nil, invalid(p, "rule cannot name both kconfig and cmdline")
		case rs.Kconfig != "":
			r.Domain, r.Identifier = models.DomainConfig, rs.Kconfig
		case rs.Cmdline != "":
			r.Domain, r.Identifier = models.DomainCmdline, rs.Cmdline
		default:
			return nil, invalid(p, "rule needs kconfig, cmdline, and or or")
		}
		if rs.Value == nil {
			return nil, invalid(p, "%s: missing value", r.Identifier)
		}
		r.Desired = strings.TrimSpace(*rs.Value)
		if r.ID == "" {
			r.ID = r.Identifier
		}
	}

	if rs.DependsOn != "" {
		b.pending = append(b.pending, pendingDep{rule: r, ref: rs.DependsOn, path: p})
	}
	if rs.ID != "" {
		if _, dup := b.byID[rs.ID]; dup {
			return nil, invalid(p, "duplicate id %q", rs.ID)
		}
		b.byID[rs.ID] = r
	}
	return r, nil
}
