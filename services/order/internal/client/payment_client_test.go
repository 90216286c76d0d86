package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentClient_Charge(t *testing.T) {
	var gotKey string
	var gotBody chargeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments", r.URL.Path)
		gotKey = r.Header.Get(HeaderIdempotencyKey)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"payment_id": "pay-1",
			"order_id": "order-1",
			"amount": "47.50",
			"status": "SUCCESS",
			"reference": "ref-001"
		}`))
	}))
	defer srv.Close()

	c := NewPaymentClient(PaymentClientConfig{BaseURL: srv.URL})

	result, err := c.Charge(context.Background(), "order-1",
		decimal.RequireFromString("47.50"), "card", "order-order-1")

	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, "order-order-1", gotKey)
	assert.Equal(t, "order-1", gotBody.OrderID)
	assert.Equal(t, "47.50", gotBody.Amount.StringFixed(2))
}

func TestChargeResult_Success(t *testing.T) {
	tests := []struct {
		name     string
		result   ChargeResult
		expected bool
	}{
		{
			name:     "SUCCESS с payment_id",
			result:   ChargeResult{Status: "SUCCESS", PaymentID: "pay-1"},
			expected: true,
		},
		{
			name:     "SUCCESS без payment_id — отказ",
			result:   ChargeResult{Status: "SUCCESS"},
			expected: false,
		},
		{
			name:     "FAILED",
			result:   ChargeResult{Status: "FAILED", PaymentID: "pay-1"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Success())
		})
	}
}

func TestPaymentClient_Charge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"gateway_unavailable"}`))
	}))
	defer srv.Close()

	c := NewPaymentClient(PaymentClientConfig{BaseURL: srv.URL})

	_, err := c.Charge(context.Background(), "order-1",
		decimal.RequireFromString("10.00"), "card", "k1")

	assert.Error(t, err)
}
