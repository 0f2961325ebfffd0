package httputil

import (
	"net"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgent is sent with every request to the data providers.
const UserAgent = "icedrift/1.0"

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// NewPooledClient returns a client that keeps up to maxConns connections
// to a single host, for exporters posting many batches concurrently.
func NewPooledClient(maxConns int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        maxConns,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: maxConns,
			MaxConnsPerHost:     maxConns,
		},
	}
}
