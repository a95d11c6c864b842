// internal/service/checkout/domain/events.go
package domain

import "time"

// OrderPlacedEvent 在订单物化后发往通知主题。
// 发送是 fire-and-forget 的，失败绝不回滚订单创建。
type OrderPlacedEvent struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Identity      string    `json:"identity"`
	GrandTotal    int64     `json:"grand_total"`
	PaymentMethod string    `json:"payment_method"`
	PlacedAt      time.Time `json:"placed_at"`
}

// AuditKind 标记一条审计记录的类别。
type AuditKind string

const (
	AuditPriceMismatch    AuditKind = "price_mismatch"
	AuditSignatureInvalid AuditKind = "signature_invalid"
	AuditAmountMismatch   AuditKind = "amount_mismatch"
	AuditRateLimited      AuditKind = "rate_limited"
	AuditTamperHeuristic  AuditKind = "tamper_heuristic"
)

// AuditEvent 是写入审计通道的安全相关记录，只追加，尽力投递。
type AuditEvent struct {
	Kind      AuditKind `json:"kind"`
	Identity  string    `json:"identity,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail"`
	At        time.Time `json:"at"`
}
