package visitor

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// ID derives a stable pseudo-anonymous visitor identifier from the client
// IP and user agent. The hash is one-way; it only approximates distinct
// visitors and is never used for authentication.
func ID(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])
}

// ClientIP resolves the originating client address: first entry of
// X-Forwarded-For, then X-Real-IP, then the transport peer address.
// Trusting the forwarded header without a terminating proxy is a known
// spoofing risk accepted for both rate-limit keying and click logging.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip := r.RemoteAddr

	// [::1]:port form
	if strings.HasPrefix(ip, "[") {
		if endBracket := strings.Index(ip, "]"); endBracket > 0 {
			return ip[1:endBracket]
		}
	}

	if strings.Contains(ip, ":") {
		lastColon := strings.LastIndex(ip, ":")
		ip = ip[:lastColon]
	}

	if ip == "" {
		return "0.0.0.0"
	}
	return ip
}
