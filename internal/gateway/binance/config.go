package binance

import (
	"strings"
	"time"
)

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
	WSProxyURL   string

	// MaxRetries bounds retry attempts for retryable execution errors.
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		if out.Testnet {
			out.RESTBaseURL = "https://testnet.binancefuture.com"
		} else {
			out.RESTBaseURL = "https://fapi.binance.com"
		}
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 2
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = 500 * time.Millisecond
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	return out
}
