// Package normalize maps loosely-shaped OCR extraction payloads onto the
// canonical purchase order record. The upstream service has no versioned
// contract, so every field resolves through an ordered alias chain and every
// number passes through defensive coercion.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"

	"github.com/sells-group/po-intake/internal/model"
)

// ErrNoData is returned when no container with any usable field can be
// located in the payload.
var ErrNoData = eris.New("normalize: no extractable data in payload")

// Normalizer converts raw extraction payloads into canonical records.
type Normalizer struct {
	header  aliasTable
	product aliasTable
}

// New returns a Normalizer with the built-in alias chains.
func New() *Normalizer {
	return &Normalizer{
		header:  defaultHeaderAliases(),
		product: defaultProductAliases(),
	}
}

// ApplyOverrides prepends extra alias entries ahead of the built-in chains.
func (n *Normalizer) ApplyOverrides(o *Overrides) {
	if o == nil {
		return
	}
	n.header.merge(o.Header)
	n.product.merge(o.Product)
}

// Normalize produces a canonical record from a raw extraction payload.
// The payload's usable content may live under one of several container keys
// or at the top level. Returns ErrNoData when nothing usable is found; the
// caller must not fabricate a record in that case.
func (n *Normalizer) Normalize(payload map[string]any) (*model.PurchaseOrder, error) {
	container := n.locateContainer(payload)
	if container == nil {
		return nil, ErrNoData
	}

	po := model.DefaultPurchaseOrder()

	po.CustomerName = n.header.text(container, "customer_name")
	po.PONumber = n.header.text(container, "po_number")
	po.Currency = normalizeCurrency(n.header.text(container, "currency"))
	po.PaymentTerms = n.header.text(container, "payment_terms")
	po.ShippingTerms = n.header.text(container, "shipping_terms")
	po.Destination = n.header.text(container, "destination")
	po.Organization = n.header.text(container, "organization")
	po.InvoiceNumber = n.header.text(container, "invoice_number")
	po.PaymentStatus = n.header.text(container, "payment_status")
	po.BookingNumber = n.header.text(container, "booking_number")

	po.Status = model.OrderStatusPending
	po.ShipmentArrangement = model.ArrangementInProgress

	po.Products = n.extractProducts(container)
	po.TotalAmount = po.SumAmounts()

	if raw, err := json.Marshal(container); err == nil {
		po.RawText = string(raw)
	}

	return po, nil
}

// locateContainer probes the known container keys in priority order and falls
// back to the payload itself. A candidate is accepted only if it is a
// structured object without an embedded error marker and carries at least one
// usable field.
func (n *Normalizer) locateContainer(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	for _, key := range containerKeys {
		if m, ok := payload[key].(map[string]any); ok && n.usable(m) {
			return m
		}
	}
	if n.usable(payload) {
		return payload
	}
	return nil
}

// usable reports whether the candidate container has anything worth
// extracting: no error marker, and at least one aliased header field, product
// collection entry, or inline product field.
func (n *Normalizer) usable(m map[string]any) bool {
	if _, hasErr := m["error"]; hasErr {
		return false
	}
	for field := range n.header {
		if _, ok := n.header.lookup(m, field); ok {
			return true
		}
	}
	if items := locateCollection(m); len(items) > 0 {
		return true
	}
	for field := range n.product {
		if _, ok := n.product.lookup(m, field); ok {
			return true
		}
	}
	return false
}

// locateCollection returns the first non-empty product collection found.
func locateCollection(container map[string]any) []any {
	for _, key := range collectionKeys {
		if items, ok := container[key].([]any); ok && len(items) > 0 {
			return items
		}
	}
	return nil
}

// extractProducts maps the product collection through the alias chains, or
// synthesizes a single line from top-level fields when no collection exists.
// Amounts missing from the source are backfilled as quantity x unit price.
func (n *Normalizer) extractProducts(container map[string]any) []model.ProductLine {
	var products []model.ProductLine

	if items := locateCollection(container); items != nil {
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			products = append(products, n.productLine(entry))
			if len(products) == model.MaxProducts {
				break
			}
		}
	}

	if len(products) == 0 {
		// Single product extracted inline at the top level.
		products = []model.ProductLine{n.productLine(container)}
	}

	for i := range products {
		p := &products[i]
		if p.Amount == 0 && p.Quantity != 0 && p.UnitPrice != 0 {
			p.Amount = float64(p.Quantity) * p.UnitPrice
		}
	}

	return products
}

func (n *Normalizer) productLine(src map[string]any) model.ProductLine {
	line := model.ProductLine{
		ProductName: n.product.text(src, "product_name"),
	}
	if v, ok := n.product.lookup(src, "quantity"); ok {
		line.Quantity = toInt(v)
	}
	if v, ok := n.product.lookup(src, "unit_price"); ok {
		line.UnitPrice = toFloat(v)
	}
	if v, ok := n.product.lookup(src, "amount"); ok {
		line.Amount = toFloat(v)
	}
	return line
}

// normalizeCurrency validates the extracted currency against ISO 4217,
// defaulting to USD when missing or unrecognized.
func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "USD"
	}
	return unit.String()
}
