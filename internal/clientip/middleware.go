// Package clientip resolves the real client address behind whatever edge
// proxy the deployment sits on. Viewer handshakes are unauthenticated, so
// the client IP is the only identity the rate limiter has to key on.
package clientip

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
)

type ctxKey struct{}

// trustedHeaders in priority order. The first populated header wins as the
// primary address; every populated header still feeds the composite key.
var trustedHeaders = []string{
	"Fly-Client-IP",    // Fly.io edge proxy
	"CF-Connecting-IP", // Cloudflare
	"True-Client-IP",   // Akamai / Cloudflare Enterprise
	"X-Real-IP",        // nginx
}

// Info is the resolved client identity for one request.
type Info struct {
	// Primary is the single most trusted address, for logs and RemoteAddr.
	Primary string

	// RateLimitKey joins every observed address, sorted. A spoofed header
	// widens the key but the TCP peer address always anchors it, so a
	// client can't escape its own bucket by inventing headers.
	RateLimitKey string
}

// Middleware resolves the client address once per request, rewrites
// r.RemoteAddr to the primary, and exposes Info via the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := resolve(r)
		r.RemoteAddr = info.Primary
		ctx := context.WithValue(r.Context(), ctxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the resolved Info, or a zero Info when the
// middleware did not run.
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(ctxKey{}).(Info); ok {
		return info
	}
	return Info{}
}

// FromRequest is shorthand for FromContext on the request's context.
func FromRequest(r *http.Request) Info {
	return FromContext(r.Context())
}

func resolve(r *http.Request) Info {
	seen := make(map[string]bool)
	var primary string

	// The TCP peer is always part of the key, trusted or not.
	if remote := stripPort(r.RemoteAddr); remote != "" {
		seen[remote] = true
	}

	for _, header := range trustedHeaders {
		ip := strings.TrimSpace(r.Header.Get(header))
		if ip == "" {
			continue
		}
		seen[ip] = true
		if primary == "" {
			primary = ip
		}
	}

	// X-Forwarded-For gets appended by every hop; only the first entry
	// says anything about the client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			seen[ip] = true
			if primary == "" {
				primary = ip
			}
		}
	}

	if primary == "" {
		primary = stripPort(r.RemoteAddr)
	}

	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	return Info{Primary: primary, RateLimitKey: strings.Join(ips, "|")}
}

// stripPort drops the port from "ip:port" or "[v6]:port" forms and the
// brackets from a bare bracketed v6 address.
func stripPort(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
