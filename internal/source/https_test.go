package source

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{name: "kernel.org", url: "https://git.kernel.org/config-6.6", wantErr: false},
		{name: "http rejected", url: "http://example.com/config", wantErr: true},
		{name: "file rejected", url: "file:///boot/config", wantErr: true},
		{name: "localhost blocked", url: "https://localhost/config", wantErr: true},
		{name: "loopback blocked", url: "https://127.0.0.1/config", wantErr: true},
		{name: "rfc1918 blocked", url: "https://10.1.2.3/config", wantErr: true},
		{name: "rfc1918 allowed with flag", url: "https://10.1.2.3/config", allowPrivate: true, wantErr: false},
		{name: "http rejected with flag", url: "http://10.1.2.3/config", allowPrivate: true, wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "no scheme", url: "not-a-url", allowPrivate: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url, tt.allowPrivate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateOrReservedIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", false},
		{"151.101.1.1", false},
		{"2606:4700::1111", false},
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"198.18.0.1", true},
		{"192.0.2.10", true},
		{"203.0.113.7", true},
		{"240.0.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPrivateOrReservedIP(net.ParseIP(tt.ip)))
		})
	}
}

func tlsConfigFor(srv *httptest.Server) *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return &tls.Config{RootCAs: pool}
}

func TestGet(t *testing.T) {
	body := "# Linux/arm64 6.6.0 Kernel Configuration\nCONFIG_ARM64=y\n"
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boot/config-6.6.0":
			_, _ = w.Write([]byte(body))
		case "/moved":
			http.Redirect(w, r, "/boot/config-6.6.0", http.StatusFound)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("#\n", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig()
	cfg.AllowPrivateHosts = true
	cfg.TLS = tlsConfigFor(srv)

	got, err := Get(context.Background(), srv.URL+"/boot/config-6.6.0", cfg)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), got.SHA256)
	assert.Equal(t, "config-6.6.0", got.Name)
	assert.Equal(t, body, string(got.Data))

	got, err = Get(context.Background(), srv.URL+"/moved", cfg)
	require.NoError(t, err)
	assert.Equal(t, body, string(got.Data))

	_, err = Get(context.Background(), srv.URL+"/missing", cfg)
	assert.ErrorContains(t, err, "status 404")

	cfg.MaxSize = 16
	_, err = Get(context.Background(), srv.URL+"/big", cfg)
	assert.ErrorContains(t, err, "exceeds maximum size")
}

func TestGet_PrivateHostBlocked(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("CONFIG_X86_64=y\n"))
	}))
	defer srv.Close()

	cfg := DefaultHTTPConfig()
	cfg.TLS = tlsConfigFor(srv)
	_, err := Get(context.Background(), srv.URL+"/config", cfg)
	assert.ErrorContains(t, err, "private/reserved")
}
