package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultRequestTimeout bounds every platform REST call. The collaborator
// APIs enforce their own server-side limits; this guards against a hung
// connection tying up a scheduler tick.
const defaultRequestTimeout = 30 * time.Second

// Client is a per-tenant REST client for the platform APIs.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

// NewClient creates a platform client for one tenant.
//
// baseURL is the platform REST endpoint without a trailing slash,
// e.g. "https://acme.example-iot.com".
func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Tenant returns the tenant this client is scoped to.
func (c *Client) Tenant() string {
	return c.creds.Tenant
}

// do performs an authenticated request and decodes the JSON response into
// out (when out is non-nil). Failures are classified into the package
// sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.creds.Tenant+"/"+c.creds.Username, c.creds.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, method, path); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %w", ErrBadResponse, method, path, err)
	}
	return nil
}

// classifyStatus maps an HTTP status code to a sentinel error, or nil for 2xx.
func classifyStatus(status int, method, path string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", ErrAuthFailure, method, path, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s %s", ErrConflict, method, path)
	case status >= 500:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, status)
	default:
		return fmt.Errorf("platform: %s %s returned unexpected status %d", method, path, status)
	}
}
