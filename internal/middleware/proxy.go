package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() honor X-Real-IP and X-Forwarded-For, but
// only when the direct peer is inside one of trustedCIDRs. Rate limiting
// and request logs key on the resolved IP.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, network)
	}

	return func(req *http.Request) string {
		direct := peerIP(req.RemoteAddr)
		if !inAny(direct, trusted) {
			return direct
		}
		if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			// Leftmost entry is the original client.
			client, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(client)
		}
		return direct
	}
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func inAny(ipStr string, networks []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range networks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
