// Package registry is a client for the purchase order persistence service.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the persistence service.
const defaultBaseURL = "http://localhost:8000"

// Client defines the persistence service operations.
type Client interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
}

// ProductPayload is one product row in the persistence schema. Note the
// in-memory amount field is named subtotal on the wire.
type ProductPayload struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// RegisterRequest is the body for POST /api/po/register.
type RegisterRequest struct {
	CustomerName  string  `json:"customer_name"`
	PONumber      string  `json:"po_number"`
	Currency      string  `json:"currency"`
	TotalAmount   float64 `json:"total_amount"`
	PaymentTerms  string  `json:"payment_terms"`
	ShippingTerms string  `json:"shipping_terms"`
	Destination   string  `json:"destination"`

	Products []ProductPayload `json:"products"`

	ShipmentArrangement string `json:"shipment_arrangement"`
	POAcquisitionDate   string `json:"po_acquisition_date"`
	Organization        string `json:"organization"`
	InvoiceNumber       string `json:"invoice_number"`
	PaymentStatus       string `json:"payment_status"`
	BookingNumber       string `json:"booking_number"`
	Memo                string `json:"memo"`
	RawText             string `json:"raw_text"`
}

// RegisterResponse is the loosely-contracted response from the persistence
// service: an explicit success flag, an assigned identifier, or an error
// with a message under one of several fields.
type RegisterResponse struct {
	Success bool   `json:"success"`
	ID      any    `json:"id"`
	Message string `json:"message"`
	Detail  any    `json:"detail"`
	Error   string `json:"error"`
}

// AssignedID returns the assigned identifier as text, or "".
func (r *RegisterResponse) AssignedID() string {
	switch id := r.ID.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// Confirmed reports whether the registration succeeded: an explicit success
// flag or the mere presence of an assigned identifier counts.
func (r *RegisterResponse) Confirmed() bool {
	return r.Success || r.AssignedID() != ""
}

// FailureMessage returns the first present message-carrying field, or "".
func (r *RegisterResponse) FailureMessage() string {
	if r.Message != "" {
		return r.Message
	}
	switch d := r.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case []any:
		parts := make([]string, 0, len(d))
		for _, entry := range d {
			if obj, ok := entry.(map[string]any); ok {
				if msg, ok := obj["msg"].(string); ok {
					parts = append(parts, msg)
					continue
				}
			}
			parts = append(parts, fmt.Sprintf("%v", entry))
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	case map[string]any:
		if b, err := json.Marshal(d); err == nil {
			return string(b)
		}
	}
	return r.Error
}

// APIError is returned when the service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: HTTP %d: %s", e.StatusCode, e.Body)
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

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new persistence service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
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

func (c *httpClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "registry: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/po/register", bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "registry: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "registry: register record")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	var out RegisterResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "registry: decode response")
	}
	return &out, nil
}
