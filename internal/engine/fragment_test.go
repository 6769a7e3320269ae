package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khcheck/khcheck/internal/catalogue"
	"github.com/khcheck/khcheck/internal/models"
)

func TestFragment(t *testing.T) {
	mmap := kconfig("CONFIG_ARCH_MMAP_RND_BITS", "MAX")
	mmap.ValueFrom = "CONFIG_ARCH_MMAP_RND_BITS_MAX"

	perf := kconfig("CONFIG_RANDSTRUCT_PERFORMANCE", models.DesiredAbsent)
	perf.Dependency = kconfig("CONFIG_RANDSTRUCT_FULL", "y")

	armOnly := kconfig("CONFIG_CPU_SW_DOMAIN_PAN", "y")
	armOnly.Architectures = []models.Arch{models.ArchARM}

	cat, err := catalogue.FromRules("test",
		kconfig("CONFIG_BUG", "y"),
		kconfig("CONFIG_KEXEC", models.DesiredAbsent),
		kconfig("CONFIG_DEFAULT_MMAP_MIN_ADDR", "65536"),
		composite(models.LogicOR,
			kconfig("CONFIG_STRICT_DEVMEM", "y"),
			kconfig("CONFIG_DEVMEM", models.DesiredAbsent),
		),
		perf,
		mmap,
		armOnly,
		cmdline("nosmt", models.DesiredPresent),
		kconfig("CONFIG_BUG", "y"),
	)
	require.NoError(t, err)

	lines, err := Fragment(cat, models.ArchX8664)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFragment(&buf, lines))
	want := strings.Join([]string{
		"CONFIG_X86_64=y",
		"CONFIG_BUG=y",
		"# CONFIG_KEXEC is not set",
		"CONFIG_DEFAULT_MMAP_MIN_ADDR=65536",
		"# CONFIG_RANDSTRUCT_PERFORMANCE is not set",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestFragment_DefaultCatalogue(t *testing.T) {
	for _, arch := range models.SupportedArchs {
		t.Run(string(arch), func(t *testing.T) {
			lines, err := Fragment(catalogue.Default(), arch)
			require.NoError(t, err)
			require.NotEmpty(t, lines)
			assert.Equal(t, FragmentLine{Symbol: "CONFIG_" + string(arch), Value: "y"}, lines[0])

			seen := map[string]bool{}
			for _, l := range lines {
				assert.True(t, strings.HasPrefix(l.Symbol, "CONFIG_"), l.Symbol)
				assert.NotEqual(t, "CONFIG_ARCH_MMAP_RND_BITS", l.Symbol)
				assert.False(t, seen[l.Symbol], "duplicate %s", l.Symbol)
				seen[l.Symbol] = true
			}
		})
	}
}

func TestFragment_UnsupportedArch(t *testing.T) {
	_, err := Fragment(catalogue.Default(), models.Arch("RISCV"))
	assert.ErrorIs(t, err, catalogue.ErrUnsupportedArch)
}
