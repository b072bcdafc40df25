package gotrue

import (
	"net/http"
	"strings"
	"time"
)

// Config holds connection settings for the identity service.
type Config struct {
	// BaseURL is the auth endpoint root, e.g.
	// "https://project.example.co/auth/v1".
	BaseURL string

	// AnonKey authenticates anonymous API traffic (sign-up, sign-in).
	AnonKey string

	// ServiceKey enables the admin endpoints. Leave empty in untrusted
	// topologies; admin calls then fail with a configuration error.
	ServiceKey string

	// Timeout for the underlying HTTP client.
	// Default: 10 seconds.
	Timeout time.Duration

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, anonKey string) Config {
	return Config{
		BaseURL: baseURL,
		AnonKey: anonKey,
		Timeout: 10 * time.Second,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &http.Client{Timeout: timeout}
}
