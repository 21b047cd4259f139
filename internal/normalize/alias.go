package normalize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Container keys probed, in priority order, before falling back to the
// payload itself.
var containerKeys = []string{"data", "result", "poData"}

// Product collection keys probed, in priority order.
var collectionKeys = []string{"products", "items"}

// aliasTable maps a canonical field name to the ordered list of source keys
// accepted for it. The first present, non-empty key wins.
type aliasTable map[string][]string

func defaultHeaderAliases() aliasTable {
	return aliasTable{
		"customer_name":  {"customer_name", "customer", "customerName", "client"},
		"po_number":      {"po_number", "poNumber", "po"},
		"currency":       {"currency", "currencyCode"},
		"payment_terms":  {"payment_terms", "paymentTerms", "payment"},
		"shipping_terms": {"shipping_terms", "terms", "incoterms"},
		"destination":    {"destination", "port"},
		"organization":   {"organization"},
		"invoice_number": {"invoice_number", "invoiceNumber", "invoice"},
		"payment_status": {"payment_status", "paymentStatus"},
		"booking_number": {"booking_number"},
	}
}

func defaultProductAliases() aliasTable {
	return aliasTable{
		"product_name": {"product_name", "name", "productName", "description"},
		"quantity":     {"quantity", "qty"},
		"unit_price":   {"unit_price", "unitPrice", "price"},
		"amount":       {"amount", "subtotal"},
	}
}

// lookup resolves a canonical field against src, returning the first present,
// non-empty value in the alias chain.
func (t aliasTable) lookup(src map[string]any, field string) (any, bool) {
	for _, key := range t[field] {
		v, ok := src[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// text resolves a canonical field to its string form, or "" if absent.
func (t aliasTable) text(src map[string]any, field string) string {
	v, ok := t.lookup(src, field)
	if !ok {
		return ""
	}
	return toString(v)
}

// Overrides holds extra alias entries loaded from a YAML file. Loaded aliases
// are checked ahead of the built-in chains so a new upstream field name is a
// data change, not a code change.
type Overrides struct {
	Header  map[string][]string `yaml:"header"`
	Product map[string][]string `yaml:"product"`
}

// LoadOverrides reads alias overrides from a YAML file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read alias file %s", path)
	}

	var wrapper struct {
		Aliases Overrides `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "normalize: parse alias file")
	}
	return &wrapper.Aliases, nil
}

// merge prepends override keys to the table's chains.
func (t aliasTable) merge(extra map[string][]string) {
	for field, keys := range extra {
		t[field] = append(append([]string{}, keys...), t[field]...)
	}
}
