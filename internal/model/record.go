package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// WorkflowState represents where the intake workflow currently is.
// Exactly one state is active at a time.
type WorkflowState string

const (
	StateCollectingInput    WorkflowState = "collecting-input"
	StateAwaitingExtraction WorkflowState = "awaiting-extraction"
	StateReviewingSummary   WorkflowState = "reviewing-summary"
)

// OrderStatus is the lifecycle status of a purchase order record.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
)

// Shipment arrangement values carried on the auxiliary logistics fields.
const (
	ArrangementBefore     = "before_arrangement"
	ArrangementInProgress = "arranging"
)

// Product line count bounds. Removal below the floor and addition above the
// ceiling are refused.
const (
	MinProducts = 1
	MaxProducts = 6
)

// ErrValidation is returned when a record fails the submission readiness gate.
var ErrValidation = eris.New("model: customer name and po number are required")

// ProductLine is one product row on a purchase order.
type ProductLine struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// PurchaseOrder is the canonical purchase order draft used throughout the
// intake workflow. Header and product fields are shown on the edit surface;
// the logistics fields below them are carried through the lifecycle but not
// edited directly.
type PurchaseOrder struct {
	CustomerName  string      `json:"customer_name"`
	PONumber      string      `json:"po_number"`
	Currency      string      `json:"currency"`
	TotalAmount   float64     `json:"total_amount"`
	PaymentTerms  string      `json:"payment_terms"`
	ShippingTerms string      `json:"shipping_terms"`
	Destination   string      `json:"destination"`
	Status        OrderStatus `json:"status"`

	Products []ProductLine `json:"products"`

	ShipmentArrangement string `json:"shipment_arrangement"`
	POAcquisitionDate   string `json:"po_acquisition_date"`
	Organization        string `json:"organization"`
	InvoiceNumber       string `json:"invoice_number"`
	PaymentStatus       string `json:"payment_status"`
	BookingNumber       string `json:"booking_number"`
	Memo                string `json:"memo"`

	// RawText is the extraction payload serialized verbatim, kept for audit.
	// It is never parsed again after normalization.
	RawText string `json:"raw_text"`
}

// DefaultPurchaseOrder returns a fresh draft with one empty product line.
func DefaultPurchaseOrder() *PurchaseOrder {
	return &PurchaseOrder{
		Currency:            "USD",
		Status:              OrderStatusPending,
		Products:            []ProductLine{{}},
		ShipmentArrangement: ArrangementBefore,
		POAcquisitionDate:   time.Now().Format("2006-01-02"),
	}
}

// SumAmounts returns the sum of all product line amounts.
func (p *PurchaseOrder) SumAmounts() float64 {
	var total float64
	for _, line := range p.Products {
		total += line.Amount
	}
	return total
}

// Validate checks the submission readiness gate: customer name and PO number
// must both be non-empty.
func (p *PurchaseOrder) Validate() error {
	if p.CustomerName == "" || p.PONumber == "" {
		return ErrValidation
	}
	return nil
}
