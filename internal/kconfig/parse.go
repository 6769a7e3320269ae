// Package kconfig parses kernel build configurations and boot command lines
// into the state the engine evaluates.
package kconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/khcheck/khcheck/internal/models"
)

var (
	// ErrDuplicateOption is returned when a symbol is listed twice
	ErrDuplicateOption = errors.New("option exists multiple times")
	// ErrMalformedLine is returned for option lines with impossible values
	ErrMalformedLine = errors.New("bad Kconfig option")
)

var (
	optIsOn      = regexp.MustCompile(`^CONFIG_[a-zA-Z0-9_]*=`)
	optIsOff     = regexp.MustCompile(`^# CONFIG_[a-zA-Z0-9_]* is not set`)
	headerLineRe = regexp.MustCompile(`^# Linux/.* Kernel Configuration`)
)

// Option is one parsed Kconfig symbol
type Option struct {
	Name  string
	Value string
	// Set is false for `# NAME is not set` lines
	Set bool
}

// Config is a parsed Kconfig file
type Config struct {
	Options []Option
	// Header is the `# Linux/<arch> <version> Kernel Configuration` comment, if any
	Header string

	index map[string]int
}

// Lookup returns the raw value of a set option
func (c *Config) Lookup(name string) (string, bool) {
	i, ok := c.index[name]
	if !ok || !c.Options[i].Set {
		return "", false
	}
	return c.Options[i].Value, true
}

// ParseConfig reads Kconfig text. Lines that are neither options nor the
// version header are ignored.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := &Config{index: map[string]int{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		var opt Option
		switch {
		case optIsOn.MatchString(line):
			name, value, _ := strings.Cut(line, "=")
			if value == models.DesiredAbsent {
				return nil, fmt.Errorf("line %d: %w: enabled option %q", lineNo, ErrMalformedLine, line)
			}
			opt = Option{Name: name, Value: value, Set: true}
		case optIsOff.MatchString(line):
			name, value, _ := strings.Cut(line[2:], " ")
			if value != models.DesiredAbsent {
				return nil, fmt.Errorf("line %d: %w: disabled option %q", lineNo, ErrMalformedLine, line)
			}
			opt = Option{Name: name, Value: value}
		default:
			if cfg.Header == "" && headerLineRe.MatchString(line) {
				cfg.Header = line
			}
			continue
		}

		if _, dup := cfg.index[opt.Name]; dup {
			return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrDuplicateOption, line)
		}
		cfg.index[opt.Name] = len(cfg.Options)
		cfg.Options = append(cfg.Options, opt)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// NewState merges a parsed config, optional cmdline parameters and detected
// metadata into an immutable State
func NewState(cfg *Config, params []Param, version *models.Version, compiler string) *models.State {
	b := models.NewStateBuilder()
	if cfg != nil {
		for _, o := range cfg.Options {
			if o.Set {
				b.SetConfig(o.Name, o.Value)
			} else {
				b.UnsetConfig(o.Name)
			}
		}
	}
	for _, p := range params {
		b.SetCmdline(p.Name, p.Value)
	}
	return b.KernelVersion(version).Compiler(compiler).Build()
}
