package relay

import (
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient builds the client shared by the provider and the relay. The timeout bounds
// waiting for response headers only; bodies stream for as long as the client keeps reading.
func NewHTTPClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}
