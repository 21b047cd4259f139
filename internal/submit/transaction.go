// Package submit registers reviewed purchase order drafts with the
// persistence service.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/model"
	"github.com/sells-group/po-intake/internal/resilience"
	"github.com/sells-group/po-intake/internal/store"
	"github.com/sells-group/po-intake/pkg/registry"
)

// ErrRegistrationFailed is returned when the persistence service declines the
// record or its response cannot be read as a confirmation.
var ErrRegistrationFailed = eris.New("submit: registration failed")

// Receipt is the outcome of a successful registration.
type Receipt struct {
	ID string `json:"id"`
}

// Transaction registers drafts and records the outcome in run history.
type Transaction struct {
	registry registry.Client
	store    store.Store
	retry    resilience.RetryConfig
}

// Option configures a Transaction.
type Option func(*Transaction)

// WithRetry overrides the retry policy used for registration calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(t *Transaction) {
		t.retry = cfg
	}
}

// New creates a Transaction. A nil store disables run history.
func New(client registry.Client, st store.Store, opts ...Option) *Transaction {
	t := &Transaction{
		registry: client,
		store:    st,
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.store == nil {
		t.store = store.NewNop()
	}
	if t.retry.ShouldRetry == nil {
		t.retry.ShouldRetry = shouldRetryRegister
	}
	if t.retry.OnRetry == nil {
		t.retry.OnRetry = resilience.RetryLogger("registry", "register")
	}
	return t
}

// Register validates the draft, submits it, and returns the assigned
// identifier. The draft is checked locally first so an incomplete record
// never reaches the wire.
func (t *Transaction) Register(ctx context.Context, runID string, record *model.PurchaseOrder) (*Receipt, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("po_number", record.PONumber))
	req := buildRequest(record)

	resp, err := resilience.DoVal(ctx, t.retry, func(ctx context.Context) (*registry.RegisterResponse, error) {
		return t.registry.Register(ctx, req)
	})
	if err != nil {
		log.Error("registration request failed", zap.Error(err))
		t.recordFailure(ctx, runID, registerErrorMessage(err))
		return nil, eris.Wrap(ErrRegistrationFailed, registerErrorMessage(err))
	}

	if !resp.Confirmed() {
		msg := resp.FailureMessage()
		if msg == "" {
			msg = "the persistence service did not confirm the registration"
		}
		log.Warn("registration declined", zap.String("message", msg))
		t.recordFailure(ctx, runID, msg)
		return nil, eris.Wrap(ErrRegistrationFailed, msg)
	}

	id := resp.AssignedID()
	log.Info("purchase order registered", zap.String("id", id))
	if runID != "" {
		if err := t.store.SetRegistered(ctx, runID, id); err != nil {
			log.Warn("failed to update intake run", zap.Error(err))
		}
	}
	return &Receipt{ID: id}, nil
}

func (t *Transaction) recordFailure(ctx context.Context, runID, msg string) {
	if runID == "" {
		return
	}
	if err := t.store.SetError(ctx, runID, store.RunStatusFailed, msg); err != nil {
		zap.L().Warn("failed to update intake run", zap.Error(err))
	}
}

// buildRequest maps the draft onto the persistence schema. The in-memory
// amount field travels as subtotal on the wire.
func buildRequest(record *model.PurchaseOrder) registry.RegisterRequest {
	products := make([]registry.ProductPayload, 0, len(record.Products))
	for _, line := range record.Products {
		products = append(products, registry.ProductPayload{
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Amount,
		})
	}

	arrangement := record.ShipmentArrangement
	if arrangement == "" {
		arrangement = model.ArrangementBefore
	}

	acquisitionDate := record.POAcquisitionDate
	if acquisitionDate == "" {
		acquisitionDate = time.Now().Format("2006-01-02")
	}

	return registry.RegisterRequest{
		CustomerName:  record.CustomerName,
		PONumber:      record.PONumber,
		Currency:      record.Currency,
		TotalAmount:   record.TotalAmount,
		PaymentTerms:  record.PaymentTerms,
		ShippingTerms: record.ShippingTerms,
		Destination:   record.Destination,

		Products: products,

		ShipmentArrangement: arrangement,
		POAcquisitionDate:   acquisitionDate,
		Organization:        record.Organization,
		InvoiceNumber:       record.InvoiceNumber,
		PaymentStatus:       record.PaymentStatus,
		BookingNumber:       record.BookingNumber,
		Memo:                record.Memo,
		RawText:             record.RawText,
	}
}

func shouldRetryRegister(err error) bool {
	var apiErr *registry.APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// registerErrorMessage extracts a user-visible message from a transport-level
// registration failure.
func registerErrorMessage(err error) string {
	var apiErr *registry.APIError
	if errors.As(err, &apiErr) {
		var resp registry.RegisterResponse
		if jsonErr := json.Unmarshal([]byte(apiErr.Body), &resp); jsonErr == nil {
			if msg := resp.FailureMessage(); msg != "" {
				return msg
			}
		}
		return "the persistence service rejected the record"
	}
	return "registering the purchase order failed"
}
