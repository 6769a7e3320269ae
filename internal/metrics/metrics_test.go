package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khcheck/khcheck/internal/catalogue"
	"github.com/khcheck/khcheck/internal/engine"
	"github.com/khcheck/khcheck/internal/models"
)

func testReport(t *testing.T) (*engine.Report, *models.State) {
	t.Helper()

	rule := func(name, decision, reason string) *models.Rule {
		return &models.Rule{
			ID:            name,
			Identifier:    name,
			Domain:        models.DomainConfig,
			Architectures: []models.Arch{models.ArchX8664},
			Desired:       "y",
			Decision:      decision,
			Reason:        reason,
		}
	}
	cat, err := catalogue.FromRules(catalogue.SectionKconfig,
		rule("CONFIG_BUG", "defconfig", "self_protection"),
		rule("CONFIG_WERROR", "kspp", "self_protection"),
		rule("CONFIG_SECURITY", "kspp", "security_policy"),
	)
	require.NoError(t, err)

	state := models.NewStateBuilder().
		SetConfig("CONFIG_BUG", "y").
		SetConfig("CONFIG_SECURITY", "y").
		KernelVersion(&models.Version{Major: 6, Minor: 6}).
		Build()

	rep, err := engine.Run(cat, models.ArchX8664, state)
	require.NoError(t, err)
	return rep, state
}

func TestRecord(t *testing.T) {
	rep, state := testReport(t)
	m := New()
	m.Record(rep, state, 1500*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checks.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RulePassed.WithLabelValues("CONFIG_BUG", "self_protection", "defconfig")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RulePassed.WithLabelValues("CONFIG_WERROR", "self_protection", "kspp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KernelInfo.WithLabelValues("6.6", "X86_64", "unknown")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.CheckDuration))
	assert.Equal(t, 3, testutil.CollectAndCount(m.RulePassed))
}

func TestRecord_Exposition(t *testing.T) {
	rep, state := testReport(t)
	m := New()
	m.Record(rep, state, time.Second)

	want := `
# HELP khcheck_checks_total Number of top-level hardening checks by verdict
# TYPE khcheck_checks_total gauge
khcheck_checks_total{verdict="fail"} 1
khcheck_checks_total{verdict="ok"} 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "khcheck_checks_total")
	assert.NoError(t, err)
}

func TestRecord_NilMetrics(t *testing.T) {
	rep, state := testReport(t)
	var m *Metrics
	assert.NotPanics(t, func() { m.Record(rep, state, 0) })
}

func TestWriteFile(t *testing.T) {
	rep, state := testReport(t)
	m := New()
	m.Record(rep, state, time.Second)

	path := filepath.Join(t.TempDir(), "khcheck.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `khcheck_rule_passed{decision="kspp",id="CONFIG_WERROR",reason="self_protection"} 0`)
	assert.Contains(t, text, `khcheck_kernel_info{arch="X86_64",compiler="unknown",version="6.6"} 1`)

	err = m.WriteFile(filepath.Join(t.TempDir(), "missing", "dir", "khcheck.prom"))
	assert.ErrorContains(t, err, "failed to write metrics file")
}

func TestRecord_BuiltinCatalogueOneSeriesPerRule(t *testing.T) {
	for _, arch := range models.SupportedArchs {
		t.Run(string(arch), func(t *testing.T) {
			rep, err := engine.Run(catalogue.Default(), arch, models.NewStateBuilder().Build())
			require.NoError(t, err)

			m := New()
			m.Record(rep, nil, time.Second)
			assert.Equal(t, len(rep.All()), testutil.CollectAndCount(m.RulePassed, "khcheck_rule_passed"))
		})
	}
}
