// Package upstream forwards admitted requests to the host serving the
// registered interfaces and streams the response back chunk by chunk.
// Only the forwarding mechanics live here; every admission and
// accounting decision is made by the gateway filter around it.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// hopHeaders are dropped when copying headers in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends requests to the upstream interface host.
type Forwarder struct {
	host       string
	httpClient *http.Client
}

// NewForwarder builds a forwarder for the given upstream base URL.
func NewForwarder(host string) *Forwarder {
	return &Forwarder{
		host: host,
		httpClient: &http.Client{
			// Streaming responses stay open as long as the upstream keeps
			// writing; only the dial and headers are bounded here.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// Forward proxies r to the upstream host, streaming the response into w
// with a flush per chunk. It reports whether the response body was
// delivered completely; a false value with a nil error means the client
// went away mid-stream.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request, w http.ResponseWriter) (bool, error) {
	target := f.host + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return false, fmt.Errorf("upstream: build request: %w", err)
	}
	copyHeaders(req.Header, r.Header)
	req.ContentLength = r.ContentLength

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("upstream: call %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, errRead := resp.Body.Read(buf)
		if n > 0 {
			if _, errWrite := w.Write(buf[:n]); errWrite != nil {
				log.Debugf("client write failed, abandoning stream: %v", errWrite)
				return false, nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errRead == io.EOF {
			return true, nil
		}
		if errRead != nil {
			return false, fmt.Errorf("upstream: read response: %w", errRead)
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(key) == h {
			return true
		}
	}
	return false
}
