package http

import (
	"DocRAG/backend/go/internal/config"
	"DocRAG/backend/go/pkg/circuitbreaker"
	"fmt"
	"net/http"
	"time"
)

// DefaultClientTimeout bounds a single outbound request.
const DefaultClientTimeout = 30 * time.Second

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a new Client. When the circuit breaker is disabled requests go straight through.
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	if !cfg.Enabled {
		return c, nil
	}

	breaker, err := createCircuitBreaker(cfg)
	if err != nil {
		return nil, err
	}
	c.breaker = breaker
	return c, nil
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures; the response is still returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}
