// Package session holds the in-memory purchase order draft being edited,
// together with the workflow state and the derived-total invariant: the
// record total tracks the sum of line amounts until the user takes manual
// control of it.
package session

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/po-intake/internal/model"
)

// LineField names an editable product line field.
type LineField string

const (
	LineFieldName      LineField = "product_name"
	LineFieldQuantity  LineField = "quantity"
	LineFieldUnitPrice LineField = "unit_price"
	LineFieldAmount    LineField = "amount"
)

// Session is the editable record session. It is not safe for concurrent use;
// the orchestrator serializes access to it.
type Session struct {
	record      *model.PurchaseOrder
	state       model.WorkflowState
	manualTotal bool
	lastError   string
	lastInfo    string
}

// New returns a session holding a default draft in collecting-input state.
func New() *Session {
	return &Session{
		record: model.DefaultPurchaseOrder(),
		state:  model.StateCollectingInput,
	}
}

// Record returns the current draft.
func (s *Session) Record() *model.PurchaseOrder {
	return s.record
}

// State returns the active workflow state.
func (s *Session) State() model.WorkflowState {
	return s.state
}

// SetState transitions the workflow. All transitions funnel through here so
// exactly one state is active at a time.
func (s *Session) SetState(state model.WorkflowState) {
	s.state = state
}

// ManualTotal reports whether the user has taken manual control of the total.
func (s *Session) ManualTotal() bool {
	return s.manualTotal
}

// AddLine appends a zero-valued product line. Refused once the ceiling is
// reached.
func (s *Session) AddLine() bool {
	if len(s.record.Products) >= model.MaxProducts {
		return false
	}
	s.record.Products = append(s.record.Products, model.ProductLine{})
	s.recomputeTotal()
	return true
}

// RemoveLine removes the product line at index. Refused when only one line
// remains or the index is out of range.
func (s *Session) RemoveLine(index int) bool {
	if len(s.record.Products) <= model.MinProducts {
		return false
	}
	if index < 0 || index >= len(s.record.Products) {
		return false
	}
	s.record.Products = append(s.record.Products[:index], s.record.Products[index+1:]...)
	s.recomputeTotal()
	return true
}

// EditLine applies a field edit to the product line at index. Quantity and
// unit price edits recompute the line amount; a direct amount edit is stored
// as-is without touching quantity or unit price.
func (s *Session) EditLine(index int, field LineField, value string) error {
	if index < 0 || index >= len(s.record.Products) {
		return eris.Errorf("session: product index %d out of range", index)
	}
	line := &s.record.Products[index]

	switch field {
	case LineFieldName:
		line.ProductName = value
	case LineFieldQuantity:
		line.Quantity = parseInt(value)
		line.Amount = float64(line.Quantity) * line.UnitPrice
	case LineFieldUnitPrice:
		line.UnitPrice = parseFloat(value)
		line.Amount = float64(line.Quantity) * line.UnitPrice
	case LineFieldAmount:
		line.Amount = parseFloat(value)
	default:
		return eris.Errorf("session: unknown line field %q", field)
	}

	s.recomputeTotal()
	return nil
}

// EditHeader assigns a header or logistics field verbatim.
func (s *Session) EditHeader(field, value string) error {
	r := s.record
	switch field {
	case "customer_name":
		r.CustomerName = value
	case "po_number":
		r.PONumber = value
	case "currency":
		r.Currency = value
	case "payment_terms":
		r.PaymentTerms = value
	case "shipping_terms":
		r.ShippingTerms = value
	case "destination":
		r.Destination = value
	case "organization":
		r.Organization = value
	case "invoice_number":
		r.InvoiceNumber = value
	case "payment_status":
		r.PaymentStatus = value
	case "booking_number":
		r.BookingNumber = value
	case "memo":
		r.Memo = value
	default:
		return eris.Errorf("session: unknown header field %q", field)
	}
	return nil
}

// SetTotalAmount stores a user-entered total and freezes it against automatic
// recomputation for the rest of the session.
func (s *Session) SetTotalAmount(value string) {
	s.manualTotal = true
	s.record.TotalAmount = parseFloat(value)
}

// Replace installs a freshly normalized record, clearing the manual-total
// override and recomputing the total.
func (s *Session) Replace(record *model.PurchaseOrder) {
	s.record = record
	s.manualTotal = false
	s.recomputeTotal()
}

// Reset restores a default draft, returns to collecting-input, and clears the
// override and any messages.
func (s *Session) Reset() {
	s.record = model.DefaultPurchaseOrder()
	s.state = model.StateCollectingInput
	s.manualTotal = false
	s.ClearMessages()
}

// ClearOverride drops the manual-total override, e.g. when a new document is
// uploaded.
func (s *Session) ClearOverride() {
	s.manualTotal = false
}

// CanSubmit reports whether the draft passes the submission readiness gate.
func (s *Session) CanSubmit() bool {
	return s.record.Validate() == nil
}

// Validate runs the submission readiness gate.
func (s *Session) Validate() error {
	return s.record.Validate()
}

// SetError records the last user-visible error message.
func (s *Session) SetError(msg string) { s.lastError = msg }

// SetInfo records the last user-visible status message.
func (s *Session) SetInfo(msg string) { s.lastInfo = msg }

// ClearMessages drops any prior messages.
func (s *Session) ClearMessages() {
	s.lastError = ""
	s.lastInfo = ""
}

// LastError returns the last user-visible error message.
func (s *Session) LastError() string { return s.lastError }

// LastInfo returns the last user-visible status message.
func (s *Session) LastInfo() string { return s.lastInfo }

// recomputeTotal maintains total = sum of line amounts unless the user has
// taken manual control.
func (s *Session) recomputeTotal() {
	if s.manualTotal {
		return
	}
	s.record.TotalAmount = s.record.SumAmounts()
}

func parseInt(value string) int {
	v := strings.TrimSpace(value)
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseFloat(value string) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return 0
}
