// Package ocr is a client for the document extraction service. The service's
// response shapes are not strictly contracted, so upload responses are kept
// as raw objects with defensive accessors.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the extraction service.
const defaultBaseURL = "http://localhost:8000"

// Client defines the extraction service operations.
type Client interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Status(ctx context.Context, id string) (*StatusResponse, error)
	Extract(ctx context.Context, id string) (map[string]any, error)
}

// UploadRequest is the multipart body for POST /api/ocr/upload.
type UploadRequest struct {
	Filename           string
	MediaType          string
	Content            []byte
	LocalKeywordAssist bool
}

// StatusResponse is the response from GET /api/ocr/status/{id}.
type StatusResponse struct {
	Status string `json:"status"`
}

// Terminal status values. The service may attach partial data even on a
// failed job, so failure statuses still lead to a result fetch.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Terminal reports whether the status ends the polling loop.
func (r *StatusResponse) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ocr: HTTP %d: %s", e.StatusCode, e.Body)
}

// Message extracts a human-readable message from the error body, falling
// back to the raw body text.
func (e *APIError) Message() string {
	var raw map[string]any
	if err := json.Unmarshal([]byte(e.Body), &raw); err == nil {
		if msg := ExtractMessage(raw); msg != "" {
			return msg
		}
	}
	return e.Body
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new extraction service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create form file")
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, eris.Wrap(err, "ocr: write form file")
	}
	if err := w.WriteField("local_kw", strconv.FormatBool(req.LocalKeywordAssist)); err != nil {
		return nil, eris.Wrap(err, "ocr: write local_kw field")
	}
	if err := w.Close(); err != nil {
		return nil, eris.Wrap(err, "ocr: close multipart writer")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ocr/upload", &body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create upload request")
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var raw map[string]any
	if err := c.do(ctx, httpReq, &raw); err != nil {
		return nil, eris.Wrap(err, "ocr: upload document")
	}
	return &UploadResponse{Raw: raw}, nil
}

func (c *httpClient) Status(ctx context.Context, id string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, fmt.Sprintf("/api/ocr/status/%s", id), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ocr: get status %s", id))
	}
	return &resp, nil
}

func (c *httpClient) Extract(ctx context.Context, id string) (map[string]any, error) {
	var payload map[string]any
	if err := c.get(ctx, fmt.Sprintf("/api/ocr/extract/%s", id), &payload); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ocr: fetch extraction result %s", id))
	}
	return payload, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(ctx, req, out)
}

func (c *httpClient) do(ctx context.Context, req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
