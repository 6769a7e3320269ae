// Package source fetches kernel configs from container images and https URLs.
package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
)

// Scheme prefixes config arguments that name an image
const Scheme = "oci://"

// maxConfigSize bounds a single extracted file
const maxConfigSize = 16 << 20

// ErrNotFound means no file in the image matched
var ErrNotFound = errors.New("no kernel config found in image")

// DefaultPatterns are where distributions install the build config
var DefaultPatterns = []string{
	"boot/config-*",
	"usr/lib/modules/*/config",
	"lib/modules/*/config",
}

// Ref is a parsed oci:// argument
type Ref struct {
	Image string
	// Path inside the image; empty means search DefaultPatterns
	Path string
}

func (r Ref) String() string {
	if r.Path == "" {
		return Scheme + r.Image
	}
	return Scheme + r.Image + "#" + r.Path
}

// Fetched is an extracted config file
type Fetched struct {
	Ref    Ref
	Digest string
	Path   string
	Data   []byte
}

// IsOCI reports whether arg uses the oci:// scheme
func IsOCI(arg string) bool {
	return strings.HasPrefix(arg, Scheme)
}

// ParseRef splits oci://image[#path] and validates the image reference
func ParseRef(arg string) (Ref, error) {
	if !IsOCI(arg) {
		return Ref{}, fmt.Errorf("not an %s reference: %q", Scheme, arg)
	}
	image, p, _ := strings.Cut(strings.TrimPrefix(arg, Scheme), "#")
	if _, err := name.ParseReference(image); err != nil {
		return Ref{}, fmt.Errorf("failed to parse image reference: %w", err)
	}
	return Ref{Image: image, Path: cleanPath(p)}, nil
}

// Fetch pulls the image and extracts its kernel config
func Fetch(ctx context.Context, arg string, opts ...crane.Option) (*Fetched, error) {
	ref, err := ParseRef(arg)
	if err != nil {
		return nil, err
	}

	opts = append(opts, crane.WithContext(ctx))
	img, err := crane.Pull(ref.Image, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", ref.Image, err)
	}
	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve digest: %w", err)
	}

	patterns := DefaultPatterns
	if ref.Path != "" {
		patterns = []string{ref.Path}
	}
	p, data, err := ExtractFile(img, patterns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return &Fetched{Ref: ref, Digest: digest.String(), Path: p, Data: data}, nil
}

// ExtractFile returns the first regular file of the flattened image
// filesystem matching any pattern. Earlier patterns win over later ones.
func ExtractFile(img v1.Image, patterns []string) (string, []byte, error) {
	rc := mutate.Extract(img)
	defer rc.Close()

	best := -1
	var bestPath string
	var bestData []byte

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read image filesystem: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		p := cleanPath(hdr.Name)
		idx := matchIndex(p, patterns)
		if idx < 0 || (best >= 0 && idx >= best) {
			continue
		}
		if hdr.Size > maxConfigSize {
			return "", nil, fmt.Errorf("%s: file too large (%d bytes)", p, hdr.Size)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxConfigSize))
		if err != nil {
			return "", nil, fmt.Errorf("read %s: %w", p, err)
		}
		best, bestPath, bestData = idx, p, data
		if idx == 0 {
			break
		}
	}

	if best < 0 {
		return "", nil, fmt.Errorf("%w (looked for %s)", ErrNotFound, strings.Join(patterns, ", "))
	}
	return bestPath, bestData, nil
}

func matchIndex(p string, patterns []string) int {
	for i, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return i
		}
	}
	return -1
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
