// Package polcloud is a client for the polcloud job backend: input bundles,
// job specifications, compute pools and jobs.
package polcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	inputsPath = "inputs"
	specsPath  = "specifications"
	poolsPath  = "pools"
	jobsPath   = "jobs"
)

// Client issues requests against one backend. It is safe to share between
// the jobs and pools it creates.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewJob returns an empty job bound to c.
func (c *Client) NewJob() *Job {
	return &Job{client: c}
}

func (c *Client) endpoint(token string, elem ...string) string {
	escaped := make([]string, len(elem))
	for i, e := range elem {
		escaped[i] = url.PathEscape(e)
	}
	u := c.baseURL + "/" + strings.Join(escaped, "/")
	if token == "" {
		return u
	}
	return u + "?" + url.Values{"token": {token}}.Encode()
}

type request struct {
	method      string
	token       string
	path        []string
	body        io.Reader
	contentType string
	length      int64
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.token, r.path...), r.body)
	if err != nil {
		return nil, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.length > 0 {
		req.ContentLength = r.length
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s /%s: %w", r.method, strings.Join(r.path, "/"), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s /%s: reading response: %w", r.method, strings.Join(r.path, "/"), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     r.method,
			Path:       "/" + strings.Join(r.path, "/"),
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}
	return data, nil
}

// doJSON sends v as a JSON body.
func (c *Client) doJSON(ctx context.Context, method, token string, v any, path ...string) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		method:      method,
		token:       token,
		path:        path,
		body:        bytes.NewReader(body),
		contentType: "application/json",
	})
}

// getJSON decodes the response of a GET into v.
func (c *Client) getJSON(ctx context.Context, token string, v any, path ...string) error {
	data, err := c.do(ctx, request{method: http.MethodGet, token: token, path: path})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("GET /%s: decoding response: %w", strings.Join(path, "/"), err)
	}
	return nil
}

// identifier turns a plain-text id response into a usable id.
func identifier(data []byte) string {
	return strings.TrimSpace(string(data))
}
