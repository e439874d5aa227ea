package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustIPConfig(t *testing.T, cidrs ...string) *pkghttp.IPConfig {
	t.Helper()
	cfg, err := pkghttp.NewIPConfig(cidrs)
	require.NoError(t, err)
	return cfg
}

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"

	// Spoofed forwarding headers from an untrusted peer
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8", "127.0.0.1/32"))

	assert.Equal(t, "203.0.113.10", ip)
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8"))

	assert.Equal(t, "203.0.113.42", ip)
}

func TestExtractClientIP_TrustedProxy_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "garbage, also-garbage")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "10.0.0.0/8"))

	assert.Equal(t, "198.51.100.7", ip)
}

func TestExtractClientIP_IPv6(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	req.Header.Set("X-Forwarded-For", "2001:db8:ffff::42")

	ip := pkghttp.ExtractClientIP(req, mustIPConfig(t, "2001:db8::/64"))

	assert.Equal(t, "2001:db8:ffff::42", ip)
}

func TestExtractClientIP_NilConfig(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "1.1.1.1")

	assert.Equal(t, "192.0.2.1", pkghttp.ExtractClientIP(req, nil))
}

func TestNewIPConfig_RejectsInvalidCIDR(t *testing.T) {
	_, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Error(t, err)

	cfg, err := pkghttp.NewIPConfig([]string{"", "  "})
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestMetaFromRequest_TruncatesUserAgent(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.9:1000"
	req.Header.Set("User-Agent", strings.Repeat("a", 2000))

	meta := pkghttp.MetaFromRequest(req, nil)

	assert.Equal(t, "192.0.2.9", meta.IPAddress)
	assert.Len(t, meta.UserAgent, 512)
}
