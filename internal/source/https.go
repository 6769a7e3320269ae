package source

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// HTTPConfig controls config downloads over https://
type HTTPConfig struct {
	AllowPrivateHosts bool
	MaxRedirects      int
	Timeout           time.Duration
	MaxSize           int64
	// TLS overrides the transport's TLS settings, nil uses system roots
	TLS *tls.Config
}

// DefaultHTTPConfig returns the download limits used by check
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		MaxRedirects: 5,
		Timeout:      60 * time.Second,
		MaxSize:      maxConfigSize,
	}
}

// Download is a config file fetched over https
type Download struct {
	URL    string
	Name   string
	SHA256 string
	Data   []byte
}

// IsHTTPS reports whether arg is an https:// URL
func IsHTTPS(arg string) bool {
	return strings.HasPrefix(arg, "https://")
}

// Get downloads a config file. Only https is accepted and, unless
// AllowPrivateHosts is set, resolved addresses must be public.
func Get(ctx context.Context, rawURL string, cfg HTTPConfig) (*Download, error) {
	if err := ValidateURL(rawURL, cfg.AllowPrivateHosts); err != nil {
		return nil, fmt.Errorf("invalid config URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := newClient(cfg).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download of %s failed with status %d", rawURL, resp.StatusCode)
	}

	limit := cfg.MaxSize
	if limit <= 0 {
		limit = maxConfigSize
	}
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(resp.Body, limit+1), h))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds maximum size (%d bytes)", rawURL, limit)
	}

	u, _ := url.Parse(rawURL)
	return &Download{
		URL:    rawURL,
		Name:   path.Base(u.Path),
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Data:   data,
	}, nil
}

// ValidateURL rejects non-https URLs and, unless allowPrivate, literal
// loopback and private hosts
func ValidateURL(rawURL string, allowPrivate bool) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("only https:// URLs allowed; got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	if allowPrivate {
		return nil
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" {
		return fmt.Errorf("localhost not allowed (use --allow-private-hosts to override)")
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateOrReservedIP(ip) {
		return fmt.Errorf("private/reserved IP address not allowed: %s (use --allow-private-hosts to override)", host)
	}
	return nil
}

// IsPrivateOrReservedIP covers loopback, RFC 1918, link-local, CGNAT and
// the documentation and benchmarking ranges
func IsPrivateOrReservedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	switch {
	case ip4[0] == 0, ip4[0] >= 240:
		return true
	case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127:
		return true
	case ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19):
		return true
	case ip4[0] == 192 && ip4[1] == 0 && (ip4[2] == 0 || ip4[2] == 2):
		return true
	case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100:
		return true
	case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113:
		return true
	}
	return false
}

func newClient(cfg HTTPConfig) *http.Client {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	dial := dialer.DialContext
	if !cfg.AllowPrivateHosts {
		dial = publicDialContext(dialer)
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 5
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			if err := ValidateURL(req.URL.String(), cfg.AllowPrivateHosts); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
		Transport: &http.Transport{
			DialContext:     dial,
			TLSClientConfig: cfg.TLS,
			// no proxy: the dialer must see the real destination
			Proxy: nil,
		},
	}
}

// publicDialContext resolves the host and refuses private addresses at
// connect time, so DNS cannot point a public name at an internal service
func publicDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IP addresses found for %s", host)
		}
		for _, ip := range ips {
			if IsPrivateOrReservedIP(ip) {
				return nil, fmt.Errorf("%s resolved to private/reserved address %s; connection blocked", host, ip)
			}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
}
