package workflow

import "github.com/sells-group/po-intake/internal/model"

// placeholderRecord is the built-in draft applied when the extraction
// service accepts a document but returns no job identifier. The values are
// intentionally recognizable as canned data so a reviewer notices them.
func placeholderRecord() *model.PurchaseOrder {
	po := model.DefaultPurchaseOrder()
	po.CustomerName = "12345 Ltd."
	po.PONumber = "76890"
	po.Currency = "USD"
	po.PaymentTerms = "LC 90 days"
	po.ShippingTerms = "CIF"
	po.Destination = "Shanghai"
	po.Organization = "Sample Organization"
	po.InvoiceNumber = "INV-2025-001"
	po.PaymentStatus = "unpaid"
	po.Products = []model.ProductLine{
		{ProductName: "Product B", Quantity: 5000, UnitPrice: 2.7, Amount: 13500},
		{ProductName: "Product C", Quantity: 4000, UnitPrice: 3.4, Amount: 13600},
		{ProductName: "Product D", Quantity: 3000, UnitPrice: 3.05, Amount: 9150},
	}
	po.TotalAmount = po.SumAmounts()
	return po
}
