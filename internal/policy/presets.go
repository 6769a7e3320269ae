// Package policy gates check reports with CEL rules and ships built-in presets
package policy

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/khcheck/khcheck/internal/models"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// presets decodes every embedded file once; the file name is the preset name
var presets = sync.OnceValues(func() (map[string]*models.PolicyConfig, error) {
	paths, err := fs.Glob(presetFS, "presets/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.PolicyConfig, len(paths))
	for _, p := range paths {
		data, err := presetFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		config, err := decodePolicy(data)
		if err != nil {
			return nil, fmt.Errorf("preset %s: %w", p, err)
		}
		out[strings.TrimSuffix(path.Base(p), ".yaml")] = config
	}
	return out, nil
})

// decodePolicy rejects unknown keys so a misspelt severity or failure_msg
// does not silently fall back to a default
func decodePolicy(data []byte) (*models.PolicyConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var config models.PolicyConfig
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &config, nil
}

// GetPreset returns a policy preset by name, or nil if not found
func GetPreset(name string) *models.PolicyConfig {
	all, err := presets()
	if err != nil {
		return nil
	}
	return all[name]
}

// ListPresetNames returns the preset names sorted
func ListPresetNames() []string {
	all, _ := presets()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads a custom policy; the path names it when the file does not
func LoadFile(path string) (*models.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	config, err := decodePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML %s: %w", path, err)
	}
	if len(config.Rules) == 0 {
		return nil, fmt.Errorf("policy must have at least one rule")
	}
	if config.Name == "" {
		config.Name = path
	}
	return config, nil
}

// Resolve accepts a preset name or a path to a policy file
func Resolve(nameOrPath string) (*models.PolicyConfig, error) {
	if p := GetPreset(nameOrPath); p != nil {
		return p, nil
	}
	if _, err := os.Stat(nameOrPath); err == nil {
		return LoadFile(nameOrPath)
	}
	return nil, fmt.Errorf("unknown preset: %s (valid: %v, or a path to a policy file)", nameOrPath, ListPresetNames())
}
