package gateway

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// CapturedBody holds a request body that has been drained exactly once
// so it can be inspected for policy data and then replayed, byte for
// byte, to the forwarding stage.
type CapturedBody struct {
	Bytes []byte
}

// CaptureBody drains the request body into memory and restores r.Body
// with a fresh reader over the same bytes, fixing the content length so
// the forwarder sees an unconsumed, identical body. A nil body captures
// as empty.
func CaptureBody(r *http.Request) (*CapturedBody, error) {
	captured := &CapturedBody{}
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("gateway: read request body: %w", err)
		}
		captured.Bytes = data
	}
	captured.Rewind(r)
	return captured, nil
}

// Rewind re-materializes the captured bytes as the request's body and
// corrects the length header. Safe to call any number of times.
func (b *CapturedBody) Rewind(r *http.Request) {
	r.Body = io.NopCloser(bytes.NewReader(b.Bytes))
	r.ContentLength = int64(len(b.Bytes))
	r.Header.Set("Content-Length", strconv.Itoa(len(b.Bytes)))
}

// resourceIDPattern is the fallback scan for bodies gjson cannot parse,
// matching the first "id": <digits> or "interfaceId": <digits>.
var resourceIDPattern = regexp.MustCompile(`"(?:id|interfaceId)"\s*:\s*(\d+)`)

// ExtractResourceID finds the invoked interface id inside a debug
// request body. It prefers proper JSON fields (id, then interfaceId) and
// falls back to a pattern scan for bodies that are not valid JSON. A
// missing id is not an error; the request simply proceeds unmetered.
func (b *CapturedBody) ExtractResourceID() (int64, bool) {
	if len(b.Bytes) == 0 {
		return 0, false
	}
	if gjson.ValidBytes(b.Bytes) {
		for _, field := range []string{"id", "interfaceId"} {
			if v := gjson.GetBytes(b.Bytes, field); v.Exists() && v.Type == gjson.Number {
				return v.Int(), true
			}
		}
	}
	if m := resourceIDPattern.FindSubmatch(b.Bytes); m != nil {
		id, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err == nil {
			return id, true
		}
	}
	return 0, false
}
