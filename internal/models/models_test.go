package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArch(t *testing.T) {
	a, ok := ParseArch("arm64")
	assert.True(t, ok)
	assert.Equal(t, ArchARM64, a)

	_, ok = ParseArch("riscv")
	assert.False(t, ok)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("6.6.12")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 6, Minor: 6}, v)
	assert.Equal(t, "6.6", v.String())

	for _, bad := range []string{"", "6", "x.1", "6.y"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersion_AtLeast(t *testing.T) {
	floor := Version{Major: 5, Minor: 9}
	assert.True(t, Version{5, 9}.AtLeast(floor))
	assert.True(t, Version{6, 0}.AtLeast(floor))
	assert.False(t, Version{5, 8}.AtLeast(floor))
	assert.False(t, Version{4, 19}.AtLeast(floor))
}

func TestRule_Kind(t *testing.T) {
	simple := &Rule{Identifier: "CONFIG_BUG", Domain: DomainConfig, Desired: "y"}
	dep := &Rule{Identifier: "CONFIG_X", Desired: "y", Dependency: simple}
	or := &Rule{Logic: LogicOR, Children: []*Rule{simple, dep}}

	assert.Equal(t, KindSimple, simple.Kind())
	assert.Equal(t, KindDependent, dep.Kind())
	assert.Equal(t, KindComposite, or.Kind())
	assert.Equal(t, "composite", or.Kind().String())

	assert.Equal(t, "CONFIG_BUG", or.Name())
	assert.Equal(t, "y", or.DisplayDesired())
	assert.Equal(t, "OR", or.DisplayDomain())

	var seen []string
	or.Walk(func(r *Rule) { seen = append(seen, r.Identifier) })
	assert.Equal(t, []string{"", "CONFIG_BUG", "CONFIG_X", "CONFIG_BUG"}, seen)
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(DesiredAbsent))
	assert.True(t, IsSentinel(DesiredNotOff))
	assert.False(t, IsSentinel("y"))
}

func TestResult_Status(t *testing.T) {
	assert.Equal(t, "OK", Result{Verdict: VerdictPass}.Status())
	assert.Equal(t, `FAIL: "m"`, Result{Verdict: VerdictFail, Detail: `"m"`}.Status())
}

func TestStateBuilder(t *testing.T) {
	s := NewStateBuilder().
		SetConfig("CONFIG_BUG", "y").
		UnsetConfig("CONFIG_DEVMEM").
		SetCmdline("mitigations", "auto").
		SetCmdline("mitigations", "off").
		KernelVersion(&Version{Major: 6, Minor: 1}).
		Compiler("GCC 12").
		Build()

	v, ok := s.Config("CONFIG_BUG")
	assert.True(t, ok)
	assert.Equal(t, "y", v)

	_, ok = s.Config("CONFIG_DEVMEM")
	assert.False(t, ok)
	assert.True(t, s.ConfigExplicitlyUnset("CONFIG_DEVMEM"))
	assert.True(t, s.Seen(DomainConfig, "CONFIG_DEVMEM"))
	assert.False(t, s.Seen(DomainConfig, "CONFIG_NOPE"))

	v, _ = s.Lookup(DomainCmdline, "mitigations")
	assert.Equal(t, "off", v)
	assert.True(t, s.HasCmdline())

	keys := s.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, ParsedKey{Domain: DomainCmdline, Name: "mitigations", Value: "off"}, keys[2])

	kv := s.KernelVersion()
	require.NotNil(t, kv)
	kv.Major = 2
	assert.Equal(t, 6, s.KernelVersion().Major)
	assert.Equal(t, "GCC 12", s.Compiler())
}

func TestPolicyRule_EffectiveSeverity(t *testing.T) {
	assert.Equal(t, PolicySeverityError, PolicyRule{}.EffectiveSeverity())
	assert.Equal(t, PolicySeverityWarn, PolicyRule{Severity: PolicySeverityWarn}.EffectiveSeverity())
}
