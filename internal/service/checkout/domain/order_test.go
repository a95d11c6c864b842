package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderNumber_Format(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 30, 45, 0, time.UTC)
	no := NewOrderNumber(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20260315093045-[0-9A-F]{6}$`), no)
	assert.NotEqual(t, no, NewOrderNumber(now), "random suffix differs per call")
}

func TestNewOrderFromReservation(t *testing.T) {
	now := time.Now()
	r := &Reservation{
		ExternalPaymentRef: "pi_123",
		Identity:           "user-1",
		Lines: []VerifiedLine{
			{ProductID: "p-1", Name: "Wireless Mouse", UnitPrice: 299, Quantity: 2},
		},
		Breakdown:  PricingBreakdown{ItemsTotal: 598, Tax: 108, Discount: 120, GrandTotal: 586},
		PromoCode:  "SAVE20",
		PaymentRef: "pay_456",
	}

	o := NewOrderFromReservation(r, now)
	assert.Equal(t, OrderConfirmed, o.Status)
	assert.True(t, o.IsPaid)
	assert.Equal(t, PaymentGatewayMethod, o.PaymentMethod)
	assert.Equal(t, "pi_123", o.ExternalPaymentRef)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(299), o.Items[0].UnitPrice)
	assert.Equal(t, int64(586), o.Breakdown.GrandTotal)
}

func TestNewCodOrder(t *testing.T) {
	o := NewCodOrder("user-1", "", nil, PricingBreakdown{GrandTotal: 412}, Address{}, time.Now())

	assert.Equal(t, OrderConfirmed, o.Status)
	assert.Equal(t, PaymentCOD, o.PaymentMethod)
	assert.False(t, o.IsPaid)
	assert.False(t, o.CodVerified)
	assert.Empty(t, o.ExternalPaymentRef)
}

func TestTransitionTo_LegalPath(t *testing.T) {
	o := NewCodOrder("user-1", "", nil, PricingBreakdown{}, Address{}, time.Now())
	now := time.Now()

	require.NoError(t, o.TransitionTo(OrderProcessing, now))
	require.NoError(t, o.TransitionTo(OrderShipped, now))
	require.NoError(t, o.TransitionTo(OrderDelivered, now))

	// 货到付款妥投即收款
	assert.True(t, o.IsPaid)
	assert.True(t, o.CodVerified)
}

func TestTransitionTo_Illegal(t *testing.T) {
	o := NewCodOrder("user-1", "", nil, PricingBreakdown{}, Address{}, time.Now())

	err := o.TransitionTo(OrderDelivered, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, OrderConfirmed, o.Status, "failed transition leaves state untouched")

	require.NoError(t, o.TransitionTo(OrderCancelled, time.Now()))
	assert.ErrorIs(t, o.TransitionTo(OrderProcessing, time.Now()), ErrInvalidTransition)
}

func TestTransitionTo_DeliveredDoesNotMarkGatewayOrders(t *testing.T) {
	r := &Reservation{ExternalPaymentRef: "pi_1", Identity: "u"}
	o := NewOrderFromReservation(r, time.Now())
	o.CodVerified = false

	require.NoError(t, o.TransitionTo(OrderProcessing, time.Now()))
	require.NoError(t, o.TransitionTo(OrderShipped, time.Now()))
	require.NoError(t, o.TransitionTo(OrderDelivered, time.Now()))
	assert.False(t, o.CodVerified)
}
