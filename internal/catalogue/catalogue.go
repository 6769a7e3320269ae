// Package catalogue loads the hardening recommendations and hands out the
// rules that apply to one architecture.
package catalogue

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/khcheck/khcheck/internal/models"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Section names of the built-in data
const (
	SectionKconfig = "kconfig"
	SectionCmdline = "cmdline"
)

var (
	// ErrUnsupportedArch is returned for architectures outside models.SupportedArchs
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrInvalidRule wraps every catalogue construction failure
	ErrInvalidRule = errors.New("invalid rule")
)

type entry struct {
	section string
	rule    *models.Rule
}

// Catalogue is an immutable ordered rule set
type Catalogue struct {
	name    string
	entries []entry
	byID    map[string]*models.Rule
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalogue
)

// Default returns the built-in catalogue. The embedded data is validated by
// tests, so a failure here is a programming error.
func Default() *Catalogue {
	defaultOnce.Do(func() {
		cat, err := loadFS(dataFS, "data")
		if err != nil {
			panic(fmt.Sprintf("built-in catalogue: %v", err))
		}
		defaultCat = cat
	})
	return defaultCat
}

// Load parses a single catalogue document
func Load(r io.Reader) (*Catalogue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return build([]document{{name: "catalogue", data: data}})
}

// LoadFile parses a catalogue file from disk
func LoadFile(p string) (*Catalogue, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalogue file not found: %s", p)
		}
		return nil, fmt.Errorf("failed to read catalogue file: %w", err)
	}
	return build([]document{{name: p, data: data}})
}

func loadFS(fsys fs.FS, dir string) (*Catalogue, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	docs := make([]document, 0, len(matches))
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m, err)
		}
		docs = append(docs, document{name: m, data: data})
	}
	return build(docs)
}

// FromRules validates programmatic rules into a catalogue with one section
func FromRules(section string, rules ...*models.Rule) (*Catalogue, error) {
	cat := &Catalogue{name: section, byID: map[string]*models.Rule{}}
	if err := checkCycles(rules); err != nil {
		return nil, err
	}
	for i, r := range rules {
		if err := validate(r, fmt.Sprintf("%s[%d]", section, i)); err != nil {
			return nil, err
		}
		cat.entries = append(cat.entries, entry{section: section, rule: r})
		r.Walk(func(n *models.Rule) {
			if n.ID != "" {
				if _, dup := cat.byID[n.ID]; !dup {
					cat.byID[n.ID] = n
				}
			}
		})
	}
	return cat, nil
}

// Name of the catalogue (first document's name field)
func (c *Catalogue) Name() string {
	return c.name
}

// Rules returns every top-level rule in authoring order
func (c *Catalogue) Rules() []*models.Rule {
	out := make([]*models.Rule, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.rule
	}
	return out
}

// Lookup finds a rule by explicit id
func (c *Catalogue) Lookup(id string) (*models.Rule, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// RulesFor filters by architecture, keeping authoring order
func (c *Catalogue) RulesFor(arch models.Arch) ([]*models.Rule, error) {
	if !supported(arch) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArch, arch)
	}
	var out []*models.Rule
	for _, e := range c.entries {
		if e.rule.AppliesTo(arch) {
			out = append(out, e.rule)
		}
	}
	return out, nil
}

// Sections returns a view restricted to the named sections
func (c *Catalogue) Sections(names ...string) *Catalogue {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	sub := &Catalogue{name: c.name, byID: c.byID}
	for _, e := range c.entries {
		if want[e.section] {
			sub.entries = append(sub.entries, e)
		}
	}
	return sub
}

// SectionNames in first-seen order
func (c *Catalogue) SectionNames() []string {
	var out []string
	seen := map[string]bool{}
	for _, e := range c.entries {
		if !seen[e.section] {
			seen[e.section] = true
			out = append(out, e.section)
		}
	}
	return out
}

func supported(arch models.Arch) bool {
	for _, a := range models.SupportedArchs {
		if a == arch {
			return true
		}
	}
	return false
}
