package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khcheck/khcheck/internal/catalogue"
	"github.com/khcheck/khcheck/internal/models"
)

func testCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()

	armOnly := kconfig("CONFIG_CPU_SW_DOMAIN_PAN", "y")
	armOnly.Architectures = []models.Arch{models.ArchARM}

	perf := kconfig("CONFIG_RANDSTRUCT_PERFORMANCE", models.DesiredAbsent)
	perf.Dependency = kconfig("CONFIG_RANDSTRUCT_FULL", "y")

	cat, err := catalogue.FromRules(catalogue.SectionKconfig,
		kconfig("CONFIG_BUG", "y"),
		kconfig("CONFIG_WERROR", "y"),
		armOnly,
		composite(models.LogicOR,
			kconfig("CONFIG_STRICT_DEVMEM", "y"),
			kconfig("CONFIG_DEVMEM", models.DesiredAbsent),
		),
		perf,
		cmdline("mitigations", models.DesiredNotOff),
	)
	require.NoError(t, err)
	return cat
}

func ids(results []models.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Rule.ID)
	}
	return out
}

func TestRun(t *testing.T) {
	cat := testCatalogue(t)
	state := models.NewStateBuilder().
		SetConfig("CONFIG_BUG", "y").
		UnsetConfig("CONFIG_DEVMEM").
		SetCmdline("mitigations", "off").
		Build()

	rep, err := Run(cat, models.ArchX8664, state)
	require.NoError(t, err)

	assert.Equal(t, models.ArchX8664, rep.Arch)
	assert.Equal(t, models.Summary{OK: 2, Fail: 3, Total: 5}, rep.Summary())
	assert.Equal(t,
		[]string{"CONFIG_BUG", "CONFIG_WERROR", "CONFIG_STRICT_DEVMEM", "CONFIG_RANDSTRUCT_PERFORMANCE", "mitigations"},
		ids(rep.All()))
	assert.Equal(t, []string{"CONFIG_BUG", "CONFIG_STRICT_DEVMEM"}, ids(rep.Passed()))
	assert.Equal(t, []string{"CONFIG_WERROR", "CONFIG_RANDSTRUCT_PERFORMANCE", "mitigations"}, ids(rep.Failed()))
}

func TestRun_Views(t *testing.T) {
	cat := testCatalogue(t)
	rep, err := Run(cat, models.ArchX8664, models.NewStateBuilder().Build())
	require.NoError(t, err)

	for _, res := range rep.All() {
		assert.Empty(t, res.Children, "All() should drop children of %s", res.Rule.ID)
	}
	for _, res := range rep.Failed() {
		assert.Empty(t, res.Children)
	}

	verbose := rep.Verbose()
	require.Len(t, verbose, 5)
	assert.Len(t, verbose[2].Children, 2)

	// views are copies
	verbose[0].Detail = "changed"
	assert.NotEqual(t, "changed", rep.Verbose()[0].Detail)
}

func TestRun_SummaryMatchesViews(t *testing.T) {
	rep, err := Run(catalogue.Default(), models.ArchARM64, models.NewStateBuilder().Build())
	require.NoError(t, err)

	sum := rep.Summary()
	assert.Equal(t, sum.Total, sum.OK+sum.Fail)
	assert.Len(t, rep.Passed(), sum.OK)
	assert.Len(t, rep.Failed(), sum.Fail)
	assert.Len(t, rep.All(), sum.Total)
}

func TestRun_UnsupportedArch(t *testing.T) {
	_, err := Run(testCatalogue(t), models.Arch("SPARC"), models.NewStateBuilder().Build())
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalogue.ErrUnsupportedArch))
}

func TestRun_Idempotent(t *testing.T) {
	cat := catalogue.Default()
	state := models.NewStateBuilder().
		SetConfig("CONFIG_BUG", "y").
		SetConfig("CONFIG_KEXEC", "y").
		SetCmdline("mitigations", "auto").
		KernelVersion(&models.Version{Major: 6, Minor: 1}).
		Build()

	first, err := Run(cat, models.ArchX8664, state)
	require.NoError(t, err)
	second, err := Run(cat, models.ArchX8664, state)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Verbose(), second.Verbose()); diff != "" {
		t.Errorf("results differ between runs (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.Summary(), second.Summary())
}

func TestUnchecked(t *testing.T) {
	cat := testCatalogue(t)
	state := models.NewStateBuilder().
		SetConfig("CONFIG_X86_64", "y").
		SetConfig("CONFIG_BUG", "y").
		UnsetConfig("CONFIG_DEVMEM").
		SetConfig("CONFIG_RANDSTRUCT_FULL", "y").
		SetConfig("CONFIG_CPU_SW_DOMAIN_PAN", "y").
		UnsetConfig("CONFIG_SOUND").
		SetCmdline("quiet", "").
		SetCmdline("mitigations", "auto").
		Build()

	got, err := Unchecked(cat, models.ArchX8664, state)
	require.NoError(t, err)

	// CONFIG_DEVMEM is known through a composite child, CONFIG_RANDSTRUCT_FULL
	// through a dependency; CONFIG_CPU_SW_DOMAIN_PAN is only checked on ARM
	want := []models.ParsedKey{
		{Domain: models.DomainConfig, Name: "CONFIG_X86_64", Value: "y"},
		{Domain: models.DomainConfig, Name: "CONFIG_CPU_SW_DOMAIN_PAN", Value: "y"},
		{Domain: models.DomainConfig, Name: "CONFIG_SOUND", Value: models.DesiredAbsent},
		{Domain: models.DomainCmdline, Name: "quiet", Value: ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unchecked() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnchecked_DomainsAreSeparate(t *testing.T) {
	cat, err := catalogue.FromRules("test", cmdline("nosmt", models.DesiredPresent))
	require.NoError(t, err)

	state := models.NewStateBuilder().SetConfig("nosmt", "y").SetCmdline("nosmt", "").Build()
	got, err := Unchecked(cat, models.ArchX8664, state)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DomainConfig, got[0].Domain)
}
