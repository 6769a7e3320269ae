package models

// State is the parsed snapshot of one kernel config and cmdline pair.
// Build it with NewStateBuilder; the finished value is read-only.
type State struct {
	config        map[string]string
	configUnset   map[string]struct{}
	cmdline       map[string]string
	keys          []ParsedKey
	kernelVersion *Version
	compiler      string
}

// ParsedKey records one key in input order
type ParsedKey struct {
	Domain Domain
	Name   string
	Value  string
}

// Config looks up a set Kconfig symbol
func (s *State) Config(name string) (string, bool) {
	v, ok := s.config[name]
	return v, ok
}

// ConfigExplicitlyUnset reports a `# NAME is not set` line
func (s *State) ConfigExplicitlyUnset(name string) bool {
	_, ok := s.configUnset[name]
	return ok
}

// Cmdline looks up a kernel parameter; "" means present without value
func (s *State) Cmdline(name string) (string, bool) {
	v, ok := s.cmdline[name]
	return v, ok
}

// Lookup dispatches on domain
func (s *State) Lookup(d Domain, name string) (string, bool) {
	if d == DomainCmdline {
		return s.Cmdline(name)
	}
	return s.Config(name)
}

// Seen reports whether the key appeared in the input at all
func (s *State) Seen(d Domain, name string) bool {
	if _, ok := s.Lookup(d, name); ok {
		return true
	}
	return d == DomainConfig && s.ConfigExplicitlyUnset(name)
}

// Keys returns every parsed key in input order
func (s *State) Keys() []ParsedKey {
	out := make([]ParsedKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// KernelVersion is nil when unknown
func (s *State) KernelVersion() *Version {
	if s.kernelVersion == nil {
		return nil
	}
	v := *s.kernelVersion
	return &v
}

// Compiler is "" when unknown
func (s *State) Compiler() string {
	return s.compiler
}

// HasCmdline reports whether any cmdline parameter was loaded
func (s *State) HasCmdline() bool {
	return len(s.cmdline) > 0
}

// StateBuilder accumulates parsed data
type StateBuilder struct {
	s *State
}

func NewStateBuilder() *StateBuilder {
	return &StateBuilder{s: &State{
		config:      map[string]string{},
		configUnset: map[string]struct{}{},
		cmdline:     map[string]string{},
	}}
}

// SetConfig records NAME=VALUE
func (b *StateBuilder) SetConfig(name, value string) *StateBuilder {
	b.s.config[name] = value
	delete(b.s.configUnset, name)
	b.s.keys = append(b.s.keys, ParsedKey{Domain: DomainConfig, Name: name, Value: value})
	return b
}

// UnsetConfig records `# NAME is not set`
func (b *StateBuilder) UnsetConfig(name string) *StateBuilder {
	b.s.configUnset[name] = struct{}{}
	delete(b.s.config, name)
	b.s.keys = append(b.s.keys, ParsedKey{Domain: DomainConfig, Name: name, Value: DesiredAbsent})
	return b
}

// SetCmdline records a parameter; later values overwrite earlier ones
func (b *StateBuilder) SetCmdline(name, value string) *StateBuilder {
	if _, dup := b.s.cmdline[name]; !dup {
		b.s.keys = append(b.s.keys, ParsedKey{Domain: DomainCmdline, Name: name, Value: value})
	} else {
		for i := range b.s.keys {
			if b.s.keys[i].Domain == DomainCmdline && b.s.keys[i].Name == name {
				b.s.keys[i].Value = value
			}
		}
	}
	b.s.cmdline[name] = value
	return b
}

func (b *StateBuilder) KernelVersion(v *Version) *StateBuilder {
	if v == nil {
		b.s.kernelVersion = nil
		return b
	}
	cp := *v
	b.s.kernelVersion = &cp
	return b
}

func (b *StateBuilder) Compiler(c string) *StateBuilder {
	b.s.compiler = c
	return b
}

// Build hands out the state; the builder must not be reused
func (b *StateBuilder) Build() *State {
	s := b.s
	b.s = nil
	return s
}
