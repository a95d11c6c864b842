// internal/service/checkout/domain/reservation.go
package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ReservationStatus 定义了支付预订单的生命周期状态。
type ReservationStatus string

const (
	ReservationCreated        ReservationStatus = "CREATED"
	ReservationPaymentPending ReservationStatus = "PAYMENT_PENDING"
	ReservationPaid           ReservationStatus = "PAID"
	ReservationPaymentFailed  ReservationStatus = "PAYMENT_FAILED"     // 终态，不可重试
	ReservationCancelled      ReservationStatus = "CANCELLED"          // 终态，TTL 清扫写入
	ReservationConverted      ReservationStatus = "CONVERTED_TO_ORDER" // 终态，已物化为订单
)

// DefaultReservationTTL 是预订单的默认存活窗口。
const DefaultReservationTTL = 15 * time.Minute

// Reservation 是一次在途支付尝试的短时记录。
// 它在创建时刻快照购物车与价格拆解，此后目录或配置的变化都不影响它；
// 转为订单后所有权移交给订单侧，预订单进入终态。
type Reservation struct {
	ExternalPaymentRef string `json:"external_payment_ref"` // 支付网关的 intent ID，唯一键
	Identity           string `json:"identity"`

	Lines     []VerifiedLine   `json:"lines"`
	Breakdown PricingBreakdown `json:"breakdown"`
	PromoCode string           `json:"promo_code,omitempty"`
	PromoID   int64            `json:"promo_id,omitempty"`

	ShippingAddress Address `json:"shipping_address"`

	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`

	PaymentRef     string `json:"payment_ref,omitempty"`
	Signature      string `json:"signature,omitempty"`
	LinkedOrderRef string `json:"linked_order_ref,omitempty"`
}

// NewReservation 以当前时刻快照创建一个预订单。
func NewReservation(intentID, identity, promoCode string, lines []VerifiedLine,
	breakdown PricingBreakdown, addr Address, now time.Time, ttl time.Duration) *Reservation {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Reservation{
		ExternalPaymentRef: intentID,
		Identity:           identity,
		Lines:              lines,
		Breakdown:          breakdown,
		PromoCode:          promoCode,
		ShippingAddress:    addr,
		Status:             ReservationCreated,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
}

// Expired 判断 now 时刻预订单是否已超出存活窗口。
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Pending 表示预订单仍在等待支付结果。
func (r *Reservation) Pending() bool {
	return r.Status == ReservationCreated || r.Status == ReservationPaymentPending
}

// VerifyCallbackSignature 校验网关回调签名：
// HMAC-SHA256(secret, intentID + "|" + paymentRef) 的十六进制串，恒定时间比较。
func VerifyCallbackSignature(secret, intentID, paymentRef, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentRef))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
