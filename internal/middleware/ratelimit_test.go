package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopledger/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func limitedHandler(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.RateLimitConfig{Enabled: true, RequestsPerWindow: limit, Window: time.Minute}
	return RateLimit(client, cfg, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mr
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// Feature: shop-ledger, Property 12: Rate limiting blocks excessive requests
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly the allowance passes, the rest get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, _ := limitedHandler(t, limit)

			ok, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				// Ports differ per request; the limit is per IP.
				switch hit(handler, fmt.Sprintf("192.168.1.100:%d", 1000+i)).Code {
				case http.StatusOK:
					ok++
				case http.StatusTooManyRequests:
					blocked++
				}
			}
			return ok == limit && blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitHeadersAndReset(t *testing.T) {
	handler, mr := limitedHandler(t, 2)

	w := hit(handler, "10.0.0.1:5000")
	if w.Header().Get("X-RateLimit-Limit") != "2" || w.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("unexpected headers %v", w.Header())
	}
	hit(handler, "10.0.0.1:5000")

	w = hit(handler, "10.0.0.1:5000")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("Expected 429 with Retry-After, got %d %v", w.Code, w.Header())
	}

	if w := hit(handler, "10.0.0.2:5000"); w.Code != http.StatusOK {
		t.Errorf("other clients must not be limited, got %d", w.Code)
	}

	mr.FastForward(time.Minute + time.Second)
	if w := hit(handler, "10.0.0.1:5000"); w.Code != http.StatusOK {
		t.Errorf("Expected the window to reset, got %d", w.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler, mr := limitedHandler(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		if w := hit(handler, "10.0.0.1:5000"); w.Code != http.StatusOK {
			t.Fatalf("Expected requests to pass while redis is down, got %d", w.Code)
		}
	}
}
