package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/khcheck/khcheck/internal/catalogue"
	"github.com/khcheck/khcheck/internal/engine"
	"github.com/khcheck/khcheck/internal/kconfig"
	"github.com/khcheck/khcheck/internal/metrics"
	"github.com/khcheck/khcheck/internal/models"
	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/observability/logging"
	otelobs "github.com/khcheck/khcheck/internal/observability/otel"
	"github.com/khcheck/khcheck/internal/observability/receipt"
	"github.com/khcheck/khcheck/internal/policy"
	"github.com/khcheck/khcheck/internal/source"
)

// checkCmd evaluates a kernel config against the catalogue
var checkCmd = &cobra.Command{
	Use:   "check -c <config> [-l <cmdline>]",
	Short: "Check kernel security hardening options",
	Long: `Checks the security hardening options in a kernel Kconfig file and,
optionally, in the kernel command line (contents of /proc/cmdline).

The config may be gzipped (*.gz, e.g. /proc/config.gz) or pulled from a
container image with oci://registry/repo:tag[#path/in/image], or downloaded
from an https:// URL.

Optionally applies a gate policy; a failed gate exits with status 1.

Examples:
  # Check the running kernel
  khcheck check -c /proc/config.gz -l /proc/cmdline

  # Show only failures
  khcheck check -c /boot/config-6.1.0 -m show_fail

  # JSON report gated by the kspp preset
  khcheck check -c /boot/config-6.1.0 -m json --policy kspp > report.json

  # Config from a container image
  khcheck check -c oci://ghcr.io/acme/kernel:6.1

  # Config published on a web server
  khcheck check -c https://example.org/kernels/config-6.1.0.gz`,
	RunE:         runCheck,
	SilenceUsage: true,
}

var (
	checkConfigFlag    string
	checkCmdlineFlag   string
	checkCatalogueFlag string
	checkInsecureFlag  bool
	checkPrivateFlag   bool
)

func init() {
	f := checkCmd.Flags()
	f.StringVarP(&checkConfigFlag, "config", "c", "", "Kernel Kconfig file to check (also *.gz files, oci:// images and https:// URLs)")
	f.StringVarP(&checkCmdlineFlag, "cmdline", "l", "", "Kernel cmdline file to check (contents of /proc/cmdline)")
	f.StringP("mode", "m", "", "Report mode: verbose, json, show_ok, or show_fail")
	f.String("policy", "", "Gate policy: none, strict, self-protection, kspp, or path to YAML file")
	f.String("metrics-file", "", "Write Prometheus textfile metrics to the given path")
	f.StringVar(&checkCatalogueFlag, "catalogue", "", "Use a custom rule catalogue YAML instead of the built-in one")
	f.BoolVar(&checkInsecureFlag, "insecure-registry", false, "Allow plain HTTP when pulling oci:// configs")
	f.BoolVar(&checkPrivateFlag, "allow-private-hosts", false, "Allow https:// configs on loopback and private addresses")

	bindFlag("mode", f.Lookup("mode"))
	bindFlag("policy", f.Lookup("policy"))
	bindFlag("metrics_file", f.Lookup("metrics-file"))
}

// GetCheckCmd export
func GetCheckCmd() *cobra.Command {
	return checkCmd
}

// checkInputs holds the parsed files of one run
type checkInputs struct {
	config *kconfig.Config
	params []kconfig.Param
	image  *source.Fetched
	remote *source.Download
}

// fetchOptions configures remote config sources
type fetchOptions struct {
	crane []crane.Option
	http  source.HTTPConfig
}

// loadInputs reads the config and cmdline concurrently
func loadInputs(ctx context.Context, configArg, cmdlineArg string, fo fetchOptions) (*checkInputs, error) {
	in := &checkInputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		switch {
		case source.IsHTTPS(configArg):
			dl, err := source.Get(gctx, configArg, fo.http)
			if err != nil {
				return err
			}
			r, err := kconfig.Decompress(dl.Name, bytes.NewReader(dl.Data))
			if err != nil {
				return err
			}
			cfg, err := kconfig.ParseConfig(r)
			if err != nil {
				return fmt.Errorf("%s: %w", dl.URL, err)
			}
			in.config, in.remote = cfg, dl
			return nil
		case !source.IsOCI(configArg):
			cfg, err := kconfig.LoadConfig(configArg)
			in.config = cfg
			return err
		}
		fetched, err := source.Fetch(gctx, configArg, fo.crane...)
		if err != nil {
			return err
		}
		r, err := kconfig.Decompress(fetched.Path, bytes.NewReader(fetched.Data))
		if err != nil {
			return err
		}
		cfg, err := kconfig.ParseConfig(r)
		if err != nil {
			return fmt.Errorf("%s: %w", fetched.Ref, err)
		}
		in.config, in.image = cfg, fetched
		return nil
	})
	if cmdlineArg != "" {
		g.Go(func() error {
			params, err := kconfig.LoadCmdline(cmdlineArg)
			in.params = params
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

func loadCatalogue(path string) (*catalogue.Catalogue, error) {
	if path == "" {
		return catalogue.Default(), nil
	}
	return catalogue.LoadFile(path)
}

// withoutSection returns a view of cat minus one section
func withoutSection(cat *catalogue.Catalogue, drop string) *catalogue.Catalogue {
	var keep []string
	for _, n := range cat.SectionNames() {
		if n != drop {
			keep = append(keep, n)
		}
	}
	return cat.Sections(keep...)
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	sess := receipt.Start(ctx, "khcheck check", os.Args[1:])
	defer func() {
		_ = sess.Finish(err)
	}()

	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "khcheck.check",
		attribute.String(otelobs.AttrOpID, observability.OpID(ctx)),
		attribute.String(otelobs.AttrCommand, "check"),
	)
	defer func() {
		otelobs.RecordError(span, err)
		span.End()
	}()

	log.Event(ctx, "check.start", map[string]any{"config": checkConfigFlag, "cmdline": checkCmdlineFlag})

	resultStatus := "fail"
	defer func() {
		log.Event(ctx, "check.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"result":      resultStatus,
		})
	}()

	mode := settings.GetString("mode")
	if !validCheckMode(mode) {
		return fmt.Errorf("invalid mode %q (use verbose, json, show_ok, or show_fail)", mode)
	}
	if checkConfigFlag == "" {
		if checkCmdlineFlag != "" {
			return errors.New("checking cmdline depends on checking Kconfig")
		}
		return errors.New("no Kconfig file given (use --config)")
	}

	out := cmd.OutOrStdout()
	text := mode != modeJSON
	if text {
		if mode != "" {
			fmt.Fprintf(out, "[+] Special report mode: %s\n", mode)
		}
		fmt.Fprintf(out, "[+] Kconfig file to check: %s\n", checkConfigFlag)
		if checkCmdlineFlag != "" {
			fmt.Fprintf(out, "[+] Kernel cmdline file to check: %s\n", checkCmdlineFlag)
		}
	}

	cat, err := loadCatalogue(checkCatalogueFlag)
	if err != nil {
		return err
	}

	fo := fetchOptions{http: source.DefaultHTTPConfig()}
	fo.http.AllowPrivateHosts = checkPrivateFlag
	if checkInsecureFlag {
		fo.crane = append(fo.crane, crane.Insecure)
	}
	in, err := loadInputs(ctx, checkConfigFlag, checkCmdlineFlag, fo)
	if err != nil {
		return err
	}
	switch {
	case in.image != nil:
		sess.Record(receipt.WithRemoteInput("config", checkConfigFlag, in.image.Digest))
		log.Info("cli", "config pulled from image", "image", in.image.Ref.Image, "digest", in.image.Digest, "path", in.image.Path)
	case in.remote != nil:
		sess.Record(receipt.WithRemoteInput("config", checkConfigFlag, "sha256:"+in.remote.SHA256))
		log.Info("cli", "config downloaded", "url", in.remote.URL, "sha256", in.remote.SHA256)
	default:
		sess.Record(receipt.WithInput("config", checkConfigFlag))
	}
	if checkCmdlineFlag != "" {
		sess.Record(receipt.WithInput("cmdline", checkCmdlineFlag))
	}

	state, arch, err := detectTarget(out, log, in, text)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String(otelobs.AttrArch, string(arch)))
	sess.Record(receipt.WithTarget(string(arch), versionString(state), state.Compiler()))

	if checkCmdlineFlag == "" {
		cat = withoutSection(cat, catalogue.SectionCmdline)
	}

	rep, err := engine.Run(cat, arch, state)
	if err != nil {
		return err
	}
	sum := rep.Summary()
	otelobs.RecordSummary(span, arch, sum)
	sess.Record(receipt.WithSummary(sum.OK, sum.Fail, sum.Total))

	if mode == modeVerbose {
		unchecked, err := engine.Unchecked(cat, arch, state)
		if err != nil {
			return err
		}
		for _, k := range unchecked {
			fmt.Fprintf(out, "[?] No check for option %s (%s)\n", k.Name, k.Value)
		}
	}

	report := buildCheckReport(rep, state, mode == modeVerbose)
	report.ConfigPath = checkConfigFlag
	report.CmdlinePath = checkCmdlineFlag

	var gate *gateRun
	if name := settings.GetString("policy"); name != "" {
		gate, err = runGate(name, rep, state)
		if err != nil {
			return err
		}
		report.Gate = gateDecision(gate.config, gate.results, gate.status)
		span.SetAttributes(attribute.String(otelobs.AttrGate, string(gate.status)))
		sess.Record(receipt.WithGate(gate.config.Name, string(gate.status), gate.hits()))
		log.Event(ctx, "gate.evaluated", map[string]any{"policy": gate.config.Name, "status": string(gate.status)})
	}

	if path := settings.GetString("metrics_file"); path != "" {
		m := metrics.New()
		m.Record(rep, state, time.Since(start))
		if err := m.WriteFile(path); err != nil {
			return err
		}
		log.Debug("cli", "metrics written", "path", path)
	}

	if text {
		FormatCheckTable(out, report, mode)
		if gate != nil {
			FormatGateResults(out, gate.config, gate.results, gate.status)
		}
	} else if err := FormatJSON(out, report); err != nil {
		return fmt.Errorf("failed to format JSON output: %w", err)
	}

	if gate != nil && gate.status == policy.GateFail {
		// the report already went to stdout; keep it clean of error text
		if !text {
			return errExit
		}
		return fmt.Errorf("policy gate %q failed", gate.config.Name)
	}

	resultStatus = "success"
	return nil
}

// detectTarget resolves arch, version and compiler and builds the State
func detectTarget(out io.Writer, log logging.Logger, in *checkInputs, text bool) (*models.State, models.Arch, error) {
	arch, err := kconfig.DetectArch(in.config, models.SupportedArchs)
	if err != nil {
		return nil, "", err
	}
	if text {
		fmt.Fprintf(out, "[+] Detected microarchitecture: %s\n", arch)
	}

	version, err := kconfig.DetectKernelVersion(in.config)
	if err != nil {
		return nil, "", err
	}
	switch {
	case version == nil:
		log.Warn("cli", "kernel version unknown, no version exemptions apply")
		if text {
			fmt.Fprintln(out, "[-] Can't detect the kernel version: no kernel version detected")
		}
	case text:
		fmt.Fprintf(out, "[+] Detected kernel version: %s\n", version)
	}

	compiler, err := kconfig.DetectCompiler(in.config)
	if err != nil {
		return nil, "", err
	}
	if text {
		if compiler != "" {
			fmt.Fprintf(out, "[+] Detected compiler: %s\n", compiler)
		} else {
			fmt.Fprintln(out, "[-] Can't detect the compiler: no CONFIG_GCC_VERSION or CONFIG_CLANG_VERSION")
		}
	}

	return kconfig.NewState(in.config, in.params, version, compiler), arch, nil
}

func versionString(state *models.State) string {
	if v := state.KernelVersion(); v != nil {
		return v.String()
	}
	return ""
}

// buildCheckReport converts an engine report to its JSON form
func buildCheckReport(rep *engine.Report, state *models.State, verbose bool) *models.CheckReport {
	results := rep.All()
	if verbose {
		results = rep.Verbose()
	}

	out := &models.CheckReport{
		SchemaVersion: models.ReportSchemaVersion,
		Timestamp:     time.Now().UTC(),
		Arch:          rep.Arch,
		KernelVersion: versionString(state),
		Compiler:      state.Compiler(),
		Summary:       rep.Summary(),
		Results:       make([]models.ReportEntry, 0, len(results)),
	}
	for _, res := range results {
		out.Results = append(out.Results, models.NewResultEntry(res, verbose))
	}
	return out
}

// gateRun is one evaluated policy
type gateRun struct {
	config  *models.PolicyConfig
	results []models.PolicyResult
	status  policy.GateStatus
}

func runGate(nameOrPath string, rep *engine.Report, state *models.State) (*gateRun, error) {
	config, err := policy.Resolve(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	eng, err := policy.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	results, err := eng.Evaluate(config, policy.BuildInput(rep, state))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	return &gateRun{config: config, results: results, status: policy.Gate(config.Mode, results)}, nil
}

// hits lists failed rules for the receipt
func (g *gateRun) hits() []receipt.RuleHit {
	refs := make(map[string][]string, len(g.config.Rules))
	for _, r := range g.config.Rules {
		refs[r.Name] = r.ControlRefs
	}
	var out []receipt.RuleHit
	for _, r := range g.results {
		if r.Passed {
			continue
		}
		out = append(out, receipt.RuleHit{
			Name:        r.RuleName,
			Severity:    string(r.Severity),
			ControlRefs: refs[r.RuleName],
		})
	}
	return out
}
