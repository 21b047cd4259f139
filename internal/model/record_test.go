package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStateValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state WorkflowState
		want  string
	}{
		{StateCollectingInput, "collecting-input"},
		{StateAwaitingExtraction, "awaiting-extraction"},
		{StateReviewingSummary, "reviewing-summary"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.state))
		})
	}
}

func TestDefaultPurchaseOrder(t *testing.T) {
	t.Parallel()

	po := DefaultPurchaseOrder()

	assert.Equal(t, "USD", po.Currency)
	assert.Equal(t, OrderStatusPending, po.Status)
	assert.Equal(t, ArrangementBefore, po.ShipmentArrangement)
	assert.Equal(t, time.Now().Format("2006-01-02"), po.POAcquisitionDate)
	require.Len(t, po.Products, 1)
	assert.Equal(t, ProductLine{}, po.Products[0])
	assert.Zero(t, po.TotalAmount)
	assert.Empty(t, po.RawText)
}

func TestSumAmounts(t *testing.T) {
	t.Parallel()

	po := &PurchaseOrder{
		Products: []ProductLine{
			{Amount: 13500},
			{Amount: 13600},
			{Amount: 9150},
		},
	}
	assert.Equal(t, 36250.0, po.SumAmounts())

	po.Products = nil
	assert.Zero(t, po.SumAmounts())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		customer string
		poNumber string
		wantErr  bool
	}{
		{"both present", "Acme Corp", "PO-1001", false},
		{"missing customer", "", "PO-1001", true},
		{"missing po number", "Acme Corp", "", true},
		{"both missing", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			po := DefaultPurchaseOrder()
			po.CustomerName = tt.customer
			po.PONumber = tt.poNumber

			err := po.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
