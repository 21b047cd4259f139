package normalize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/po-intake/internal/model"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestNormalizeStringCoercion(t *testing.T) {
	t.Parallel()

	po, err := New().Normalize(decode(t, `{"items":[{"name":"Widget","qty":"10","price":"2.5"}]}`))
	require.NoError(t, err)

	require.Len(t, po.Products, 1)
	assert.Equal(t, "Widget", po.Products[0].ProductName)
	assert.Equal(t, 10, po.Products[0].Quantity)
	assert.Equal(t, 2.5, po.Products[0].UnitPrice)
	assert.Equal(t, 25.0, po.Products[0].Amount)
	assert.Equal(t, 25.0, po.TotalAmount)
}

func TestNormalizeNoData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"error marker", `{"error":"bad scan"}`},
		{"empty object", `{}`},
		{"nothing usable", `{"unrelated":"value"}`},
		{"container with error", `{"data":{"error":"bad scan"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().Normalize(decode(t, tt.payload))
			assert.ErrorIs(t, err, ErrNoData)
		})
	}
}

func TestNormalizeContainerProbing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"under data", `{"data":{"customer_name":"Acme","po_number":"42"}}`},
		{"under result", `{"result":{"customer_name":"Acme","po_number":"42"}}`},
		{"under poData", `{"poData":{"customer_name":"Acme","po_number":"42"}}`},
		{"at top level", `{"customer_name":"Acme","po_number":"42"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			po, err := New().Normalize(decode(t, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, "Acme", po.CustomerName)
			assert.Equal(t, "42", po.PONumber)
		})
	}
}

func TestNormalizeContainerPriority(t *testing.T) {
	t.Parallel()

	// data wins over result when both are usable.
	po, err := New().Normalize(decode(t,
		`{"data":{"customer_name":"First"},"result":{"customer_name":"Second"}}`))
	require.NoError(t, err)
	assert.Equal(t, "First", po.CustomerName)

	// an unusable data container is skipped in favor of result.
	po, err = New().Normalize(decode(t,
		`{"data":{"error":"partial"},"result":{"customer_name":"Second"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Second", po.CustomerName)
}

func TestNormalizeHeaderAliases(t *testing.T) {
	t.Parallel()

	po, err := New().Normalize(decode(t, `{
		"customerName": "Nihon Trading",
		"po": "76890",
		"currencyCode": "jpy",
		"payment": "LC 90 days",
		"incoterms": "CIF",
		"port": "Shanghai",
		"invoice": "INV-2025-001",
		"paymentStatus": "unpaid"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Nihon Trading", po.CustomerName)
	assert.Equal(t, "76890", po.PONumber)
	assert.Equal(t, "JPY", po.Currency)
	assert.Equal(t, "LC 90 days", po.PaymentTerms)
	assert.Equal(t, "CIF", po.ShippingTerms)
	assert.Equal(t, "Shanghai", po.Destination)
	assert.Equal(t, "INV-2025-001", po.InvoiceNumber)
	assert.Equal(t, "unpaid", po.PaymentStatus)
}

func TestNormalizeAliasPriority(t *testing.T) {
	t.Parallel()

	// First alias in the chain wins; empty strings do not count as present.
	po, err := New().Normalize(decode(t,
		`{"customer_name":"Canonical","customer":"Fallback","po_number":"","poNumber":"99"}`))
	require.NoError(t, err)
	assert.Equal(t, "Canonical", po.CustomerName)
	assert.Equal(t, "99", po.PONumber)
}

func TestNormalizeProductsCollection(t *testing.T) {
	t.Parallel()

	po, err := New().Normalize(decode(t, `{"data":{"products":[
		{"product_name":"Product B","quantity":5000,"unit_price":2.7,"amount":13500},
		{"description":"Product C","qty":4000,"price":3.4,"subtotal":13600}
	]}}`))
	require.NoError(t, err)

	require.Len(t, po.Products, 2)
	assert.Equal(t, model.ProductLine{ProductName: "Product B", Quantity: 5000, UnitPrice: 2.7, Amount: 13500}, po.Products[0])
	assert.Equal(t, model.ProductLine{ProductName: "Product C", Quantity: 4000, UnitPrice: 3.4, Amount: 13600}, po.Products[1])
	assert.Equal(t, 27100.0, po.TotalAmount)
}

func TestNormalizeSynthesizedLine(t *testing.T) {
	t.Parallel()

	// No collection at all: a single line is synthesized from inline fields.
	po, err := New().Normalize(decode(t,
		`{"product_name":"Inline Widget","quantity":3,"unit_price":1.5}`))
	require.NoError(t, err)

	require.Len(t, po.Products, 1)
	assert.Equal(t, "Inline Widget", po.Products[0].ProductName)
	assert.Equal(t, 3, po.Products[0].Quantity)
	assert.Equal(t, 4.5, po.Products[0].Amount) // backfilled qty x price
}

func TestNormalizeAmountBackfill(t *testing.T) {
	t.Parallel()

	po, err := New().Normalize(decode(t, `{"products":[
		{"name":"A","quantity":10,"unit_price":2},
		{"name":"B","quantity":10,"amount":5},
		{"name":"C","unit_price":2}
	]}`))
	require.NoError(t, err)

	require.Len(t, po.Products, 3)
	assert.Equal(t, 20.0, po.Products[0].Amount)
	assert.Equal(t, 5.0, po.Products[1].Amount) // explicit amount kept
	assert.Zero(t, po.Products[2].Amount)       // missing factor, no backfill
}

func TestNormalizeProductCeiling(t *testing.T) {
	t.Parallel()

	items := make([]any, 0, 10)
	for range 10 {
		items = append(items, map[string]any{"name": "X", "quantity": 1, "unit_price": 1})
	}
	po, err := New().Normalize(map[string]any{"products": items})
	require.NoError(t, err)
	assert.Len(t, po.Products, model.MaxProducts)
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	po, err := New().Normalize(decode(t, `{"customer_name":"Acme"}`))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusPending, po.Status)
	assert.Equal(t, "USD", po.Currency)
	assert.Equal(t, model.ArrangementInProgress, po.ShipmentArrangement)
	assert.JSONEq(t, `{"customer_name":"Acme"}`, po.RawText)
}

func TestNormalizeCurrencyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"USD", "USD"},
		{"eur", "EUR"},
		{" jpy ", "JPY"},
		{"dollars", "USD"},
		{"", "USD"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeCurrency(tt.in))
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	n := New()
	n.ApplyOverrides(&Overrides{
		Header:  map[string][]string{"customer_name": {"buyer"}},
		Product: map[string][]string{"quantity": {"pieces"}},
	})

	po, err := n.Normalize(decode(t, `{"buyer":"Override Co","items":[{"name":"W","pieces":7,"price":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Override Co", po.CustomerName)
	assert.Equal(t, 7, po.Products[0].Quantity)
	assert.Equal(t, 14.0, po.Products[0].Amount)
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aliases:
  header:
    destination: [discharge_port]
  product:
    amount: [line_total]
`), 0o644))

	o, err := LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"discharge_port"}, o.Header["destination"])
	assert.Equal(t, []string{"line_total"}, o.Product["amount"])

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCoercion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, toInt("10"))
	assert.Equal(t, 2, toInt("2.9"))
	assert.Equal(t, 5, toInt(5.0))
	assert.Zero(t, toInt("ten"))
	assert.Zero(t, toInt(nil))

	assert.Equal(t, 2.5, toFloat("2.5"))
	assert.Equal(t, 3.0, toFloat(3))
	assert.Zero(t, toFloat("n/a"))
	assert.Zero(t, toFloat(nil))

	assert.Equal(t, "x", toString("x"))
	assert.Equal(t, "12", toString(12.0))
	assert.Equal(t, `{"msg":"nested"}`, toString(map[string]any{"msg": "nested"}))
	assert.Empty(t, toString(nil))
}
