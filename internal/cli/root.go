package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/observability/logging"
	otelobs "github.com/khcheck/khcheck/internal/observability/otel"
	"github.com/khcheck/khcheck/internal/observability/receipt"
	"github.com/khcheck/khcheck/internal/version"
)

const envPrefix = "KHCHECK"

// settings layers flags over KHCHECK_* env over the config file
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "khcheck",
	Short: "Checks Linux kernel security hardening options",
	Long: `khcheck: Linux kernel security hardening checker.
Checks a kernel Kconfig file (and optionally the kernel command line) against a
catalogue of hardening recommendations, prints the catalogue, or generates a
Kconfig fragment.`,
	Version:           version.BuildVersion(),
	SilenceErrors:     true,
	PersistentPreRunE: setupRuntime,
}

var (
	configFileFlag string

	// set up per run, released by teardownRuntime
	runtimeLogger  logging.Logger
	runtimeTracer  *otelobs.Handle
	runtimeReceipt receipt.Writer
)

// errExit carries a non-zero exit whose reason was already reported
var errExit = errors.New("exit status 1")

func Execute() {
	err := rootCmd.Execute()
	// cobra skips post-run hooks when RunE fails
	if cerr := teardownRuntime(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintln(os.Stderr, "[!] ERROR:", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFileFlag, "config-file", "", "Path to a khcheck YAML settings file")
	pf.String("log-format", logging.FormatNone, "Log format: jsonl, pretty, or none")
	pf.String("log-level", logging.LevelInfo, "Log level: debug, info, warn, or error")
	pf.String("log-output", "stderr", "Log destination: stderr or a file path")
	pf.Bool("otel", false, "Enable OpenTelemetry tracing")
	pf.String("otel-endpoint", "", "OTLP endpoint (default from OTEL_EXPORTER_OTLP_ENDPOINT)")
	pf.String("otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp or otlpgrpc")
	pf.Bool("otel-insecure", false, "Disable TLS for the OTLP exporter")
	pf.Float64("otel-sample-ratio", 1.0, "Trace sample ratio between 0 and 1")
	pf.String("receipt", "", "Write a JSON receipt of this run to the given path")
	pf.String("receipt-mode", string(receipt.ModeOverwrite), "Receipt mode: overwrite or append")

	bindFlag("log.format", pf.Lookup("log-format"))
	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.output", pf.Lookup("log-output"))
	bindFlag("otel.enabled", pf.Lookup("otel"))
	bindFlag("otel.endpoint", pf.Lookup("otel-endpoint"))
	bindFlag("otel.protocol", pf.Lookup("otel-protocol"))
	bindFlag("otel.insecure", pf.Lookup("otel-insecure"))
	bindFlag("otel.sample_ratio", pf.Lookup("otel-sample-ratio"))
	bindFlag("receipt.path", pf.Lookup("receipt"))
	bindFlag("receipt.mode", pf.Lookup("receipt-mode"))

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(GetCheckCmd())
	rootCmd.AddCommand(GetPrintCmd())
	rootCmd.AddCommand(GetGenerateCmd())
	rootCmd.AddCommand(GetDiffCmd())
	rootCmd.AddCommand(GetPolicyCmd())
}

// bindFlag panics on a nil flag, a programming error surfaced at init
func bindFlag(key string, flag *pflag.Flag) {
	if err := settings.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// loadSettings reads the optional settings file. An explicit --config-file
// must exist; the default locations are optional.
func loadSettings() error {
	path := configFileFlag
	if path == "" {
		path = defaultSettingsFile()
	}
	if path == "" {
		return nil
	}
	settings.SetConfigFile(path)
	if err := settings.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	return nil
}

func defaultSettingsFile() string {
	var candidates []string
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "khcheck", "config.yaml"))
	}
	candidates = append(candidates, ".khcheck.yaml")
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func setupRuntime(cmd *cobra.Command, args []string) error {
	if err := loadSettings(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithOpID(ctx)

	logger, err := logging.NewLogger(logging.Config{
		Format: settings.GetString("log.format"),
		Level:  settings.GetString("log.level"),
		Output: settings.GetString("log.output"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	runtimeLogger = logger
	ctx = logging.WithLogger(ctx, logger)

	if settings.GetBool("otel.enabled") {
		cfg := otelobs.DefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = settings.GetString("otel.endpoint")
		cfg.Protocol = settings.GetString("otel.protocol")
		cfg.Insecure = settings.GetBool("otel.insecure")
		cfg.SampleRatio = settings.GetFloat64("otel.sample_ratio")

		h, err := otelobs.Init(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		runtimeTracer = h
		ctx = otelobs.WithHandle(ctx, h)
	}

	if path := settings.GetString("receipt.path"); path != "" {
		w, err := receipt.NewWriter(path, settings.GetString("receipt.mode"))
		if err != nil {
			return err
		}
		runtimeReceipt = w
		ctx = receipt.WithWriter(ctx, w)
	}

	logger.Debug("cli", "runtime ready", "command", cmd.CommandPath(), "settings_file", settings.ConfigFileUsed())
	cmd.SetContext(ctx)
	return nil
}

func teardownRuntime() error {
	var errs []error
	if runtimeReceipt != nil {
		errs = append(errs, runtimeReceipt.Close())
		runtimeReceipt = nil
	}
	if runtimeTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, runtimeTracer.Shutdown(ctx))
		cancel()
		runtimeTracer = nil
	}
	if runtimeLogger != nil {
		errs = append(errs, runtimeLogger.Close())
		runtimeLogger = nil
	}
	return errors.Join(errs...)
}
