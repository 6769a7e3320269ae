package kconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/khcheck/khcheck/internal/models"
)

var (
	ErrArchNotDetected = errors.New("failed to detect microarchitecture")
	ErrAmbiguousArch   = errors.New("more than one supported microarchitecture is detected")
	ErrBadVersion      = errors.New("failed to parse the version")
	ErrBadCompiler     = errors.New("invalid GCC_VERSION and CLANG_VERSION")
)

// DetectArch finds the single CONFIG_<ARCH>=y among the supported archs
func DetectArch(cfg *Config, supported []models.Arch) (models.Arch, error) {
	var found models.Arch
	for _, o := range cfg.Options {
		if !o.Set || o.Value != "y" {
			continue
		}
		name := strings.TrimPrefix(o.Name, "CONFIG_")
		for _, a := range supported {
			if string(a) != name {
				continue
			}
			if found != "" {
				return "", fmt.Errorf("%w: %s and %s", ErrAmbiguousArch, found, a)
			}
			found = a
		}
	}
	if found == "" {
		return "", ErrArchNotDetected
	}
	return found, nil
}

// DetectKernelVersion reads major.minor from the config header. A config
// without a header yields nil and no error.
func DetectKernelVersion(cfg *Config) (*models.Version, error) {
	if cfg.Header == "" {
		return nil, nil
	}
	parts := strings.Fields(cfg.Header)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadVersion, cfg.Header)
	}
	raw := parts[2]
	nums := strings.Split(raw, ".")
	if len(nums) < 3 {
		return nil, fmt.Errorf("%w %q", ErrBadVersion, raw)
	}
	major, err := strconv.Atoi(nums[0])
	if err != nil || major < 0 {
		return nil, fmt.Errorf("%w %q", ErrBadVersion, raw)
	}
	minor, err := strconv.Atoi(nums[1])
	if err != nil || minor < 0 {
		return nil, fmt.Errorf("%w %q", ErrBadVersion, raw)
	}
	return &models.Version{Major: major, Minor: minor}, nil
}

// DetectCompiler returns "GCC n" or "CLANG n". Configs that lack either
// version symbol yield "" and no error.
func DetectCompiler(cfg *Config) (string, error) {
	gcc, okGCC := cfg.Lookup("CONFIG_GCC_VERSION")
	clang, okClang := cfg.Lookup("CONFIG_CLANG_VERSION")
	if !okGCC || !okClang {
		return "", nil
	}
	switch {
	case gcc == "0" && clang != "0":
		return "CLANG " + clang, nil
	case gcc != "0" && clang == "0":
		return "GCC " + gcc, nil
	default:
		return "", fmt.Errorf("%w: %s %s", ErrBadCompiler, gcc, clang)
	}
}
