package document

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

const maxErrorBody = 4096

// APIError is a non-2xx answer from the framework's resource API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("document api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("document api: status %d: %s", e.StatusCode, e.Message)
}

// FrappeClient is a Store backed by the low-code framework's REST resource
// API (/api/resource/{doctype}/{name}).
type FrappeClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewFrappeClient creates a new FrappeClient. A nil httpClient gets a
// client with a 30 second timeout.
func NewFrappeClient(baseURL, apiKey, apiSecret string, httpClient *http.Client) *FrappeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FrappeClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *FrappeClient) Create(ctx context.Context, doctype string, payload any) (string, error) {
	var created struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPost, c.resourceURL(doctype, ""), payload, &created); err != nil {
		return "", fmt.Errorf("create %s: %w", doctype, err)
	}
	return created.Name, nil
}

func (c *FrappeClient) Update(ctx context.Context, doctype, name string, payload any) (string, error) {
	var updated struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPut, c.resourceURL(doctype, name), payload, &updated); err != nil {
		return "", fmt.Errorf("update %s %q: %w", doctype, name, err)
	}
	if updated.Name == "" {
		updated.Name = name
	}
	return updated.Name, nil
}

func (c *FrappeClient) Get(ctx context.Context, doctype, name string, out any) error {
	if err := c.do(ctx, http.MethodGet, c.resourceURL(doctype, name), nil, out); err != nil {
		return fmt.Errorf("get %s %q: %w", doctype, name, err)
	}
	return nil
}

func (c *FrappeClient) List(ctx context.Context, doctype string) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("fields", `["*"]`)
	q.Set("limit_page_length", "0")

	var docs []json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.resourceURL(doctype, "")+"?"+q.Encode(), nil, &docs); err != nil {
		return nil, fmt.Errorf("list %s: %w", doctype, err)
	}
	return docs, nil
}

func (c *FrappeClient) resourceURL(doctype, name string) string {
	u := c.baseURL + "/api/resource/" + url.PathEscape(doctype)
	if name != "" {
		u += "/" + url.PathEscape(name)
	}
	return u
}

// do sends body as JSON and decodes the "data" member of the answer into out.
func (c *FrappeClient) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// errorMessage extracts the framework's exception text from an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if body.Exception != "" {
		return body.Exception
	}
	return body.Message
}
