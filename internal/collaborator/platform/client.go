// Package platform implements the user-directory and interface-registry
// contracts against the marketplace backend's inner HTTP API.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/apimart/gateway/internal/collaborator"
)

// Client talks to the platform backend's inner endpoints. Responses use
// the backend's envelope {"code": 0, "data": {...}}; a zero code with a
// null data object is a miss, not an error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a platform client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Per-call deadlines come from the request context; this is a
			// hard cap against stuck connections.
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("platform: read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: %s returned status %d", path, resp.StatusCode)
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		return nil, fmt.Errorf("platform: %s returned code %d", path, code.Int())
	}
	return body, nil
}

// ResolveByAccessKey implements collaborator.UserDirectory.
func (c *Client) ResolveByAccessKey(ctx context.Context, accessKey string) (*collaborator.Caller, error) {
	body, err := c.get(ctx, "/api/inner/user/getInvokeUser", url.Values{"accessKey": {accessKey}})
	if err != nil {
		return nil, err
	}
	return parseCaller(body), nil
}

// ResolveBySessionID implements collaborator.UserDirectory.
func (c *Client) ResolveBySessionID(ctx context.Context, sessionID string) (*collaborator.Caller, error) {
	body, err := c.get(ctx, "/api/inner/user/getLoginUser", url.Values{"sessionId": {sessionID}})
	if err != nil {
		return nil, err
	}
	return parseCaller(body), nil
}

// Resolve implements collaborator.InterfaceRegistry.
func (c *Client) Resolve(ctx context.Context, fullURL, method string) (*collaborator.Resource, error) {
	body, err := c.get(ctx, "/api/inner/interfaceInfo/getInterfaceInfo", url.Values{
		"url":    {fullURL},
		"method": {method},
	})
	if err != nil {
		return nil, err
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, nil
	}
	return &collaborator.Resource{
		ID:      data.Get("id").Int(),
		Method:  data.Get("method").String(),
		FullURL: data.Get("url").String(),
	}, nil
}

func parseCaller(body []byte) *collaborator.Caller {
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil
	}
	return &collaborator.Caller{
		ID:        data.Get("id").Int(),
		AccessKey: data.Get("accessKey").String(),
		SecretKey: data.Get("secretKey").String(),
	}
}
