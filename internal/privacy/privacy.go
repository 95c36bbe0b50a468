// Package privacy redacts video references and other URLs before they leave
// the process in error reports. Redaction is deterministic so the same URL
// always maps to the same token.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`\b(?:https?|s3|rtsp|rtmp)://[^\s"'<>]+`)

// ScrubMessage replaces every URL in message with its redacted form.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

// RedactURL keeps the scheme and a coarse host category of rawURL and
// replaces everything else with a short hash.
func RedactURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return fmt.Sprintf("url-%x", sum[:6])
	}
	return fmt.Sprintf("%s://%s/url-%x", strings.ToLower(u.Scheme), categorizeHost(u.Hostname()), sum[:6])
}

// categorizeHost reduces a host to localhost, private-ip, public-ip or the
// top-level domain of a name.
func categorizeHost(host string) string {
	if host == "" {
		return "unknown-host"
	}
	if strings.EqualFold(host, "localhost") {
		return "localhost"
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		switch {
		case addr.IsLoopback():
			return "localhost"
		case addr.IsPrivate(), addr.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndex(host, "."); i >= 0 && i < len(host)-1 {
		return "domain-" + strings.ToLower(host[i+1:])
	}
	return "unknown-host"
}
