package http

import (
	"DocRAG/backend/go/internal/config"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// helper function to create a mock config for testing
func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Middleware: config.MiddlewareConfig{
			RateLimiter: config.RateLimiterConfig{
				Enabled:   true,
				Algorithm: "tokenBucket",
				TokenBucket: config.TokenBucketConfig{
					Rate:     10, // 10 tokens per second
					Capacity: 5,  // Bucket size of 5
				},
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2, // Open after 2 consecutive failures
				SuccessThreshold: 2,
				Timeout:          "10s",
			},
		},
	}
}

func TestNewServer_WithAddress(t *testing.T) {
	cfg := newTestConfig()
	addr := ":9999"

	srv, err := NewServer(cfg, WithAddress(addr))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	if srv.Addr() != addr {
		t.Errorf("Expected server address to be %s, but got %s", addr, srv.Addr())
	}
}

func TestNewServer_AddressFromConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.Server.Address = ":8123"

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.Addr() != ":8123" {
		t.Errorf("Expected server address :8123, got %s", srv.Addr())
	}
}

func TestNewServer_RejectsUnknownAlgorithm(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Algorithm = "leakyBucket"

	if _, err := NewServer(cfg); err == nil {
		t.Fatal("Expected an error for an unknown rate limiter algorithm")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	// Use a very small capacity to make testing easier
	cfg.Middleware.RateLimiter.TokenBucket.Capacity = 2
	cfg.Middleware.RateLimiter.TokenBucket.Rate = 1

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	srv.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	// First 2 requests should pass (equal to capacity)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status OK on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The 3rd request should be rate limited
	resp, err := http.Get(testServer.URL)
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status TooManyRequests on request 3, got %d", resp.StatusCode)
	}
}

func TestSlidingCounterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.CircuitBreaker.Enabled = false
	cfg.Middleware.RateLimiter.Algorithm = "slidingCounter"
	cfg.Middleware.RateLimiter.SlidingCounter = config.SlidingCounterConfig{Limit: 1, Window: "1m", NumBuckets: 6}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	srv.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		codes = append(codes, resp.StatusCode)
		resp.Body.Close()
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", codes)
	}
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cfg := newTestConfig()
	// Lower the failure threshold for the test
	cfg.Middleware.CircuitBreaker.FailureThreshold = 2

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	// This handler will always fail, to trip the breaker
	srv.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	// First 2 requests should fail and trip the circuit
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL + "/fail")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected status InternalServerError on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The 3rd request should be blocked by the open circuit breaker
	resp, err := http.Get(testServer.URL + "/fail")
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status ServiceUnavailable on request 3, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Circuit Breaker is open") {
		t.Errorf("Expected body to contain 'Circuit Breaker is open', got '%s'", string(body))
	}
}

func TestCircuitBreakerMiddleware_KeepsStreamingWorking(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Enabled = false

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	srv.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "no flusher", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "data: one\n\n")
		flusher.Flush()
	})

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/stream")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %d", resp.StatusCode)
	}
}

func TestClient_OpensAfterServerErrors(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	client, err := NewClient(config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          "1m",
	}, time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Request %d returned error %v, want the 502 response", i+1, err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("Expected 502 on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("Expected the open circuit to reject the request")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("Expected upstream to see 2 requests, got %d", got)
	}
}

func TestClient_WithoutBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	client, err := NewClient(config.CircuitBreakerConfig{}, 0)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		resp.Body.Close()
	}
}
