package source

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		arg     string
		want    Ref
		wantErr bool
	}{
		{arg: "oci://debian:bookworm", want: Ref{Image: "debian:bookworm"}},
		{arg: "oci://ghcr.io/acme/kernel:6.1#/boot/config-6.1.0", want: Ref{Image: "ghcr.io/acme/kernel:6.1", Path: "boot/config-6.1.0"}},
		{arg: "oci://registry.local:5000/kernel@sha256:" + strings.Repeat("a", 64), want: Ref{Image: "registry.local:5000/kernel@sha256:" + strings.Repeat("a", 64)}},
		{arg: "debian:bookworm", wantErr: true},
		{arg: "oci://UPPER/case", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseRef(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRef_String(t *testing.T) {
	assert.Equal(t, "oci://debian:bookworm", Ref{Image: "debian:bookworm"}.String())
	assert.Equal(t, "oci://k:1#boot/config", Ref{Image: "k:1", Path: "boot/config"}.String())
}

func TestExtractFile(t *testing.T) {
	img, err := crane.Image(map[string][]byte{
		"etc/os-release":               []byte("ID=debian\n"),
		"usr/lib/modules/6.1.0/config": []byte("CONFIG_ARM64=y\n"),
		"boot/config-6.1.0-13-amd64":   []byte("CONFIG_X86_64=y\n"),
	})
	require.NoError(t, err)

	p, data, err := ExtractFile(img, DefaultPatterns)
	require.NoError(t, err)
	assert.Equal(t, "boot/config-6.1.0-13-amd64", p, "earlier patterns win")
	assert.Equal(t, "CONFIG_X86_64=y\n", string(data))

	p, data, err = ExtractFile(img, []string{"usr/lib/modules/*/config"})
	require.NoError(t, err)
	assert.Equal(t, "usr/lib/modules/6.1.0/config", p)
	assert.Equal(t, "CONFIG_ARM64=y\n", string(data))
}

func TestExtractFile_NotFound(t *testing.T) {
	img, err := crane.Image(map[string][]byte{"etc/hostname": []byte("box\n")})
	require.NoError(t, err)

	_, _, err = ExtractFile(img, DefaultPatterns)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(registry.New())
	defer srv.Close()
	host := strings.TrimPrefix(srv.URL, "http://")

	img, err := crane.Image(map[string][]byte{
		"boot/config-6.6.0": []byte("# Linux/x86 6.6.0 Kernel Configuration\nCONFIG_X86_64=y\n"),
	})
	require.NoError(t, err)
	imageRef := host + "/kernel:6.6"
	require.NoError(t, crane.Push(img, imageRef, crane.Insecure))

	got, err := Fetch(context.Background(), Scheme+imageRef, crane.Insecure)
	require.NoError(t, err)

	wantDigest, err := img.Digest()
	require.NoError(t, err)
	assert.Equal(t, wantDigest.String(), got.Digest)
	assert.Equal(t, "boot/config-6.6.0", got.Path)
	assert.Contains(t, string(got.Data), "CONFIG_X86_64=y")

	_, err = Fetch(context.Background(), Scheme+imageRef+"#etc/missing", crane.Insecure)
	assert.ErrorIs(t, err, ErrNotFound)
}
