package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the CMS REST API. It handles Bearer
// token authentication, the {"data": ...} envelope and error
// classification. It never retries; callers decide what to do with a
// failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a new CMS client. The baseURL is the REST root
// (e.g., https://cms.example.com/api). A zero timeout leaves the HTTP
// client without a deadline.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the REST root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Meta carries list pagination metadata.
type Meta struct {
	Pagination struct {
		Page      int `json:"page"`
		PageSize  int `json:"pageSize"`
		PageCount int `json:"pageCount"`
		Total     int `json:"total"`
	} `json:"pagination"`
}

// ListResponse is a decoded collection response.
type ListResponse struct {
	Data []map[string]any
	Meta Meta
}

// envelope is the raw {"data": ..., "meta": ...} wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta Meta            `json:"meta"`
}

// Wrap returns payload inside the {"data": ...} envelope used for
// create and update requests.
func Wrap(payload map[string]any) map[string]any {
	return map[string]any{"data": payload}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	token string,
	path string,
	q *Query,
	result any,
) error {
	return c.do(ctx, http.MethodGet, token, path, q, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(
	ctx context.Context,
	token string,
	path string,
	body any,
	result any,
) error {
	return c.do(ctx, http.MethodPost, token, path, nil, body, result)
}

// Put performs an HTTP PUT request with a JSON body.
func (c *Client) Put(
	ctx context.Context,
	token string,
	path string,
	body any,
	result any,
) error {
	return c.do(ctx, http.MethodPut, token, path, nil, body, result)
}

// Patch performs an HTTP PATCH request with a JSON body.
func (c *Client) Patch(
	ctx context.Context,
	token string,
	path string,
	body any,
	result any,
) error {
	return c.do(ctx, http.MethodPatch, token, path, nil, body, result)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(
	ctx context.Context,
	token string,
	path string,
	result any,
) error {
	return c.do(ctx, http.MethodDelete, token, path, nil, nil, result)
}

// List fetches a collection and returns its raw records.
func (c *Client) List(
	ctx context.Context,
	token string,
	path string,
	q *Query,
) (*ListResponse, error) {
	var env envelope
	if err := c.Get(ctx, token, path, q, &env); err != nil {
		return nil, err
	}

	resp := &ListResponse{Meta: env.Meta}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return resp, nil
	}
	if err := json.Unmarshal(env.Data, &resp.Data); err != nil {
		return nil, &MalformedError{Path: path, Reason: "data is not an array of objects"}
	}
	return resp, nil
}

// One fetches a single record wrapped in the data envelope. A null data
// field is reported as a not-found error.
func (c *Client) One(
	ctx context.Context,
	token string,
	path string,
	q *Query,
) (map[string]any, error) {
	var env envelope
	if err := c.Get(ctx, token, path, q, &env); err != nil {
		return nil, err
	}
	return decodeOne(path, env.Data)
}

// Write sends payload inside the data envelope with the given method
// (POST, PUT or PATCH) and returns the record the CMS echoes back.
func (c *Client) Write(
	ctx context.Context,
	method string,
	token string,
	path string,
	payload map[string]any,
) (map[string]any, error) {
	var env envelope
	if err := c.do(ctx, method, token, path, nil, Wrap(payload), &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return map[string]any{}, nil
	}
	return decodeOne(path, env.Data)
}

func decodeOne(path string, data json.RawMessage) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, &APIError{
			Method: http.MethodGet, Path: path,
			Status: http.StatusNotFound, Kind: KindNotFound,
			Message: "empty data",
		}
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &MalformedError{Path: path, Reason: "data is not an object"}
	}
	return rec, nil
}

// do is the core HTTP method that builds the request, handles auth and
// JSON (de)serialization, and classifies failures.
func (c *Client) do(
	ctx context.Context,
	method string,
	token string,
	path string,
	q *Query,
	body any,
	result any,
) error {
	target := c.baseURL + path
	if q != nil {
		if enc := q.Encode(); enc != "" {
			target += "?" + enc
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, path, result)
}

// send executes req and decodes the response into result.
func (c *Client) send(req *http.Request, path string, result any) error {
	method := req.Method
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("cms request failed", "method", method, "path", path, "err", err)
		return &TransportError{Method: method, Path: path, Err: err}
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return &TransportError{
			Method: method, Path: path,
			Err: fmt.Errorf("reading response body: %w", readErr),
		}
	}

	c.log.Debug("cms request",
		"method", method, "path", path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, path, resp, respBody)
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &MalformedError{
			Path:   path,
			Reason: fmt.Sprintf("unmarshaling response from %s %s: %v", method, path, err),
		}
	}

	return nil
}

// newAPIError builds an APIError from a failed response, using the CMS
// error envelope when present.
func newAPIError(method, path string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Kind:   kindForStatus(resp.StatusCode),
	}

	var eb ErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		apiErr.Name = eb.Error.Name
		apiErr.Message = eb.Error.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// CollectionPath returns "/<collection>" or "/<collection>/<key>" with the
// key path-escaped.
func CollectionPath(collection string, key ...string) string {
	p := "/" + strings.Trim(collection, "/")
	for _, k := range key {
		p += "/" + url.PathEscape(k)
	}
	return p
}

// ErrNoIdentifier is returned when a write targets a record without an
// id or document id.
var ErrNoIdentifier = errors.New("record has no identifier")
