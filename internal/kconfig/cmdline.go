package kconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMultilineCmdline is returned when the cmdline input has a second line
var ErrMultilineCmdline = errors.New("more than one line in cmdline")

// Param is one kernel command line parameter. Value is "" for bare flags.
type Param struct {
	Name  string
	Value string
}

// Parameters the kernel does not parse with kstrtobool(); their values are
// kept verbatim.
var verbatimParams = map[string]struct{}{
	"debugfs":                   {},
	"mitigations":               {},
	"pti":                       {},
	"spectre_v2":                {},
	"spectre_v2_user":           {},
	"spectre_bhi":               {},
	"spec_store_bypass_disable": {},
	"l1tf":                      {},
	"mds":                       {},
	"tsx_async_abort":           {},
	"srbds":                     {},
	"mmio_stale_data":           {},
	"retbleed":                  {},
	"spec_rstack_overflow":      {},
	"gather_data_sampling":      {},
	"reg_file_data_sampling":    {},
	"rodata":                    {},
	"ssbd":                      {},
	"iommu":                     {},
	"vsyscall":                  {},
	"tsx":                       {},
}

// ParseCmdline reads the contents of /proc/cmdline
func ParseCmdline(r io.Reader) ([]Param, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read cmdline: %w", err)
	}
	if _, err := br.Peek(1); err == nil {
		return nil, ErrMultilineCmdline
	}

	var params []Param
	for _, tok := range strings.Fields(line) {
		name, value, _ := strings.Cut(tok, "=")
		params = append(params, Param{Name: name, Value: NormalizeParam(name, value)})
	}
	return params, nil
}

// NormalizeParam mirrors the subset of kstrtobool() the kernel applies, so
// that "on", "yes" and "1" compare equal.
func NormalizeParam(name, value string) string {
	if _, ok := verbatimParams[name]; ok {
		return value
	}
	switch strings.ToLower(value) {
	case "1", "on", "y", "yes", "t", "true":
		return "1"
	case "0", "off", "n", "no", "f", "false":
		return "0"
	}
	return value
}
