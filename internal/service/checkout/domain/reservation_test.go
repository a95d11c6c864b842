package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservation_TTL(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	r := NewReservation("pi_123", "user-1", "SAVE20", nil, PricingBreakdown{}, Address{}, now, 15*time.Minute)

	assert.Equal(t, ReservationCreated, r.Status)
	assert.Equal(t, now.Add(15*time.Minute), r.ExpiresAt)
	assert.False(t, r.Expired(now.Add(15*time.Minute)), "boundary instant is still alive")
	assert.True(t, r.Expired(now.Add(15*time.Minute+time.Second)))
}

func TestNewReservation_DefaultTTL(t *testing.T) {
	now := time.Now()
	r := NewReservation("pi_123", "user-1", "", nil, PricingBreakdown{}, Address{}, now, 0)
	assert.Equal(t, now.Add(DefaultReservationTTL), r.ExpiresAt)
}

func TestReservation_Pending(t *testing.T) {
	r := &Reservation{Status: ReservationCreated}
	assert.True(t, r.Pending())
	r.Status = ReservationPaymentPending
	assert.True(t, r.Pending())
	r.Status = ReservationPaid
	assert.False(t, r.Pending())
	r.Status = ReservationCancelled
	assert.False(t, r.Pending())
}

func signFor(secret, intentID, paymentRef string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCallbackSignature(t *testing.T) {
	sig := signFor("secret", "pi_123", "pay_456")
	require.True(t, VerifyCallbackSignature("secret", "pi_123", "pay_456", sig))

	assert.False(t, VerifyCallbackSignature("secret", "pi_123", "pay_456", sig[:len(sig)-1]+"0"))
	assert.False(t, VerifyCallbackSignature("other", "pi_123", "pay_456", sig))
	assert.False(t, VerifyCallbackSignature("secret", "pi_123", "pay_tampered", sig))
	assert.False(t, VerifyCallbackSignature("secret", "pi_123", "pay_456", ""))
}
