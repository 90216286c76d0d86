// Package domain содержит unit тесты доменных сущностей Inventory Service.
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInventoryRow_Available(t *testing.T) {
	tests := []struct {
		name     string
		onHand   int64
		reserved int64
		expected int64
	}{
		{name: "без резерваций", onHand: 10, reserved: 0, expected: 10},
		{name: "частично зарезервирован", onHand: 10, reserved: 4, expected: 6},
		{name: "полностью зарезервирован", onHand: 5, reserved: 5, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := InventoryRow{OnHand: tt.onHand, Reserved: tt.reserved}
			assert.Equal(t, tt.expected, row.Available())
		})
	}
}

func TestReservation_ExpiredAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		reservation Reservation
		expected    bool
	}{
		{
			name:        "активная с живым TTL",
			reservation: Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(time.Minute)},
			expected:    false,
		},
		{
			name:        "активная с истёкшим TTL",
			reservation: Reservation{Status: ReservationStatusActive, ExpiresAt: now.Add(-time.Minute)},
			expected:    true,
		},
		{
			name:        "подтверждённая не истекает",
			reservation: Reservation{Status: ReservationStatusConfirmed, ExpiresAt: now.Add(-time.Minute)},
			expected:    false,
		},
		{
			name:        "освобождённая не истекает",
			reservation: Reservation{Status: ReservationStatusReleased, ExpiresAt: now.Add(-time.Minute)},
			expected:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.reservation.ExpiredAt(now))
		})
	}
}

func TestReserveLine_Validate(t *testing.T) {
	tests := []struct {
		name        string
		line        ReserveLine
		expectedErr error
	}{
		{name: "валидная позиция", line: ReserveLine{ProductID: "p1", Qty: 1}},
		{name: "пустой ID товара", line: ReserveLine{Qty: 1}, expectedErr: ErrInvalidProductID},
		{name: "нулевое количество", line: ReserveLine{ProductID: "p1"}, expectedErr: ErrInvalidQuantity},
		{name: "отрицательное количество", line: ReserveLine{ProductID: "p1", Qty: -2}, expectedErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.line.Validate()
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
