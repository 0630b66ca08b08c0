package clientip

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStripPort(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{"192.168.1.100:12345", "192.168.1.100"},
		{"192.168.1.100", "192.168.1.100"},
		{"[2001:db8::1]:8080", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"[2001:db8::1]", "2001:db8::1"},
		{"[::1]:80", "::1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripPort(tt.addr); got != tt.want {
			t.Errorf("stripPort(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestResolve_HeaderPriority(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name: "fly edge wins over everything",
			headers: map[string]string{
				"Fly-Client-IP":    "203.0.113.45",
				"CF-Connecting-IP": "198.51.100.1",
				"X-Real-IP":        "192.0.2.1",
				"X-Forwarded-For":  "10.0.0.1",
			},
			want: "203.0.113.45",
		},
		{
			name: "cloudflare next",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.1",
				"X-Real-IP":        "192.0.2.1",
			},
			want: "198.51.100.1",
		},
		{
			name:    "nginx real ip",
			headers: map[string]string{"X-Real-IP": "192.0.2.1"},
			want:    "192.0.2.1",
		},
		{
			name:    "first forwarded hop",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2, 10.0.0.3"},
			want:    "10.0.0.1",
		},
		{
			name:    "remote addr when nothing else",
			headers: map[string]string{},
			want:    "172.16.29.234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "172.16.29.234:54686"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := resolve(req).Primary; got != tt.want {
				t.Errorf("Primary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_CompositeKeyAnchorsRemoteAddr(t *testing.T) {
	// A spoofed header must not move the client into a fresh bucket; the
	// peer address is always part of the key.
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	key := resolve(req).RateLimitKey
	if !strings.Contains(key, "192.0.2.10") {
		t.Errorf("key %q missing peer address", key)
	}
	if !strings.Contains(key, "1.2.3.4") {
		t.Errorf("key %q missing forwarded address", key)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	build := func() *http.Request {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		req.Header.Set("Fly-Client-IP", "203.0.113.50")
		req.Header.Set("X-Forwarded-For", "203.0.113.50, 192.168.1.1")
		return req
	}
	if k1, k2 := resolve(build()).RateLimitKey, resolve(build()).RateLimitKey; k1 != k2 {
		t.Errorf("same request produced %q and %q", k1, k2)
	}
}

func TestMiddleware_ContextAndRemoteAddr(t *testing.T) {
	var got Info
	var remoteAddr string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromRequest(r)
		remoteAddr = r.RemoteAddr
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("Fly-Client-IP", "203.0.113.45")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.Primary != "203.0.113.45" {
		t.Errorf("Primary = %q, want edge header value", got.Primary)
	}
	if remoteAddr != "203.0.113.45" {
		t.Errorf("RemoteAddr = %q, want rewritten to primary", remoteAddr)
	}
	if !strings.Contains(got.RateLimitKey, "10.0.0.5") {
		t.Errorf("key %q missing peer address", got.RateLimitKey)
	}
}

func TestFromContext_ZeroWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if info := FromRequest(req); info.Primary != "" || info.RateLimitKey != "" {
		t.Errorf("info = %+v, want zero", info)
	}
}
