package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/version"
)

// MaxErrorLength caps error strings in receipts
const MaxErrorLength = 2048

// Session collects facts about one command run until Finish
type Session struct {
	ctx     context.Context
	started time.Time
	command string
	args    []string
	opts    []Option
}

// Start opens a session; nothing is written until Finish
func Start(ctx context.Context, command string, args []string) *Session {
	return &Session{ctx: ctx, started: time.Now(), command: command, args: args}
}

// Record queues options for the final receipt
func (s *Session) Record(opts ...Option) {
	s.opts = append(s.opts, opts...)
}

// Option fills part of a receipt
type Option func(*Receipt)

// WithInput records a local file with its sha256. Unreadable files are
// recorded without a hash.
func WithInput(kind, path string) Option {
	return func(r *Receipt) {
		if path == "" {
			return
		}
		in := InputRef{Kind: kind, Path: path}
		if sum, err := hashFile(path); err == nil {
			in.SHA256 = sum
		}
		r.Inputs = append(r.Inputs, in)
	}
}

// WithRemoteInput records a config pulled from an image or URL
func WithRemoteInput(kind, ref, digest string) Option {
	return func(r *Receipt) {
		shown, _ := RedactArgs([]string{ref})
		r.Inputs = append(r.Inputs, InputRef{Kind: kind, Path: shown[0], Digest: digest})
	}
}

// WithTarget records the detected kernel
func WithTarget(arch, kernelVersion, compiler string) Option {
	return func(r *Receipt) {
		r.Target = &TargetSummary{Arch: arch, KernelVersion: kernelVersion, Compiler: compiler}
	}
}

// WithSummary records the final OK/FAIL counts
func WithSummary(ok, fail, total int) Option {
	return func(r *Receipt) {
		r.Check = &CheckSummary{OK: ok, Fail: fail, Total: total}
	}
}

// WithDrift records a report comparison
func WithDrift(regressions, improvements, other int, summary string) Option {
	return func(r *Receipt) {
		r.Drift = &DriftSummary{Regressions: regressions, Improvements: improvements, Other: other, Summary: summary}
	}
}

// WithGate records the policy outcome
func WithGate(preset, status string, hits []RuleHit) Option {
	return func(r *Receipt) {
		r.Policy = &PolicySummary{Preset: preset, Status: status, RulesHit: hits}
	}
}

// Finish writes the receipt with recorded options, then opts. It is a
// no-op when the context carries no writer.
func (s *Session) Finish(err error, opts ...Option) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	args, redacted := RedactArgs(s.args)
	ended := time.Now()
	r := Receipt{
		SchemaVersion: ReceiptSchemaVersion,
		OpID:          observability.OpID(s.ctx),
		Tool:          ToolInfo{Version: version.BuildVersion(), Revision: version.Revision()},
		TsStart:       s.started.Format(time.RFC3339Nano),
		TsEnd:         ended.Format(time.RFC3339Nano),
		DurationMS:    ended.Sub(s.started).Milliseconds(),
		Command:       s.command,
		Args:          args,
		ArgsRedacted:  redacted,
		Result:        Result{Status: "success"},
	}
	if err != nil {
		r.Result = Result{Status: "fail", Error: clip(err.Error())}
	}

	for _, opt := range append(s.opts, opts...) {
		opt(&r)
	}
	return w.Write(r)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func clip(s string) string {
	if len(s) > MaxErrorLength {
		return s[:MaxErrorLength-3] + "..."
	}
	return s
}
