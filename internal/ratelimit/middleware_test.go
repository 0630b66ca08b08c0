package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/repolens-dev/repolens-web/internal/clientip"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	l := NewInMemoryRateLimiter(1, 3)
	defer l.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "client") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if l.Allow(ctx, "client") {
		t.Error("request over burst should be denied")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := NewInMemoryRateLimiter(1, 1)
	defer l.Stop()
	ctx := context.Background()

	if !l.Allow(ctx, "a") {
		t.Fatal("first request for a should be allowed")
	}
	if l.Allow(ctx, "a") {
		t.Error("second request for a should be denied")
	}
	if !l.Allow(ctx, "b") {
		t.Error("b has its own bucket and should be allowed")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := NewInMemoryRateLimiter(100, 1)
	defer l.Stop()
	ctx := context.Background()

	if !l.Allow(ctx, "client") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow(ctx, "client") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond) // 100 rps refills within this window

	if !l.Allow(ctx, "client") {
		t.Error("bucket should have refilled")
	}
}

func TestSweep_DropsIdleClients(t *testing.T) {
	l := NewInMemoryRateLimiter(1, 1)
	defer l.Stop()
	ctx := context.Background()

	l.Allow(ctx, "idle")
	l.Allow(ctx, "active")

	// Only clients idle past the cutoff get dropped.
	time.Sleep(5 * time.Millisecond)
	l.Allow(ctx, "active")

	if removed := l.sweep(time.Now().Add(-2 * time.Millisecond)); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	l.mu.Lock()
	_, hasActive := l.clients["active"]
	_, hasIdle := l.clients["idle"]
	l.mu.Unlock()
	if !hasActive || hasIdle {
		t.Errorf("clients after sweep: active=%v idle=%v, want active only", hasActive, hasIdle)
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	l := NewInMemoryRateLimiter(0.001, 1)
	defer l.Stop()

	handler := clientip.Middleware(Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	request := func(remoteAddr string) int {
		req := httptest.NewRequest("POST", "/api/share/x/handshake", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request("192.0.2.1:100"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := request("192.0.2.1:100"); code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", code)
	}

	// A different client is unaffected.
	if code := request("192.0.2.2:100"); code != http.StatusOK {
		t.Errorf("other client = %d, want 200", code)
	}
}
