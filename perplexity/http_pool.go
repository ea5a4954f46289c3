package perplexity

import (
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	sharedClientOnce sync.Once
	sharedClient     *http.Client
)

// defaultHTTPClient returns a pooled client without an overall timeout.
// Upstream searches can run long and the only cancellation source is the
// invocation context.
func defaultHTTPClient() *http.Client {
	sharedClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
		sharedClient = &http.Client{Transport: transport}
	})
	return sharedClient
}
