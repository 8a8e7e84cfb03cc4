package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	apiVersion      = "v9.2"
	maxResponseSize = 4 * 1024 * 1024
)

// Client issues authenticated OData v4 calls against one Dataverse
// environment. All calls are synchronous and issued one at a time.
type Client struct {
	resourceURL string
	apiURL      string
	token       string
	httpc       *http.Client
}

type ClientConfig struct {
	ResourceURL string
	AccessToken string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	base := NormalizeResourceURL(cfg.ResourceURL)
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{
		resourceURL: base,
		apiURL:      base + "/api/data/" + apiVersion,
		token:       cfg.AccessToken,
		httpc:       httpc,
	}
}

// Connect acquires a token and returns a Web API client bound to it.
func Connect(ctx context.Context, tenantID, clientID, clientSecret, resourceURL string) (*Client, error) {
	tok, err := AcquireToken(ctx, tenantID, clientID, clientSecret, resourceURL, TokenOptions{})
	if err != nil {
		return nil, err
	}
	return NewClient(ClientConfig{ResourceURL: resourceURL, AccessToken: tok.AccessToken}), nil
}

// entityURL returns the absolute OData URL for a single record, the form
// $ref association bodies and $id disassociation parameters require.
func (c *Client) entityURL(entitySet, id string) string {
	return fmt.Sprintf("%s/%s(%s)", c.apiURL, entitySet, id)
}

// Call issues one authenticated Web API request. path is relative to the api
// root and may carry a query string. A non-2xx response becomes *APIError.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.call(ctx, method, path, body, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body any, extra http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	url := c.apiURL + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}
	for key, values := range extra {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status: resp.StatusCode,
			Method: method,
			URL:    url,
			Body:   string(data),
		}
	}
	return json.RawMessage(data), nil
}
