// internal/service/checkout/application/dto.go
package application

import (
	"time"

	"vertex/internal/service/checkout/domain"
)

// Caller 描述一次请求的来源，用于限流、审计和订单归属。
type Caller struct {
	UserID    string
	Role      string
	IP        string
	UserAgent string
}

// Key 返回限流用的身份键：优先用户 ID，匿名流量退化到 IP。
func (c Caller) Key() string {
	if c.UserID != "" {
		return "user:" + c.UserID
	}
	return "ip:" + c.IP
}

// CartLineDTO 是客户端提交的一行购物车。
type CartLineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // 客户端声称的单价，仅用于比对
}

func toDomainLines(lines []CartLineDTO) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.CartLine{
			ProductID:         l.ProductID,
			Quantity:          l.Quantity,
			AssertedUnitPrice: l.UnitPrice,
		})
	}
	return out
}

// ValidatePromoRequest 试算一次优惠，不产生任何副作用。
type ValidatePromoRequest struct {
	Lines     []CartLineDTO `json:"lines"`
	PromoCode string        `json:"promo_code"`
}

type ValidatePromoResponse struct {
	Valid     bool                    `json:"valid"`
	Discount  int64                   `json:"discount"`
	Breakdown domain.PricingBreakdown `json:"breakdown"`
}

// CreateIntentRequest 发起一次网关支付。ExpectedTotal 非零时做二次核对。
type CreateIntentRequest struct {
	Lines           []CartLineDTO  `json:"lines"`
	PromoCode       string         `json:"promo_code,omitempty"`
	ShippingAddress domain.Address `json:"shipping_address"`
	ExpectedTotal   int64          `json:"expected_total,omitempty"`
}

type CreateIntentResponse struct {
	IntentID  string                  `json:"intent_id"`
	Amount    int64                   `json:"amount"`
	Currency  string                  `json:"currency"`
	ExpiresAt time.Time               `json:"expires_at"`
	Breakdown domain.PricingBreakdown `json:"breakdown"`
}

// PaymentCallbackRequest 是网关异步回调的载荷。
type PaymentCallbackRequest struct {
	IntentID   string `json:"intent_id"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

type PaymentCallbackResponse struct {
	OrderID     string `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// PlaceCodOrderRequest 是货到付款直接下单路径。
type PlaceCodOrderRequest struct {
	Lines           []CartLineDTO  `json:"lines"`
	PromoCode       string         `json:"promo_code,omitempty"`
	ShippingAddress domain.Address `json:"shipping_address"`
	ExpectedTotal   int64          `json:"expected_total,omitempty"`
}

type OrderResponse struct {
	OrderID     string                  `json:"order_id"`
	OrderNumber string                  `json:"order_number"`
	Status      string                  `json:"status"`
	IsPaid      bool                    `json:"is_paid"`
	Breakdown   domain.PricingBreakdown `json:"breakdown"`
	Items       []domain.OrderItem      `json:"items"`
	PlacedAt    time.Time               `json:"placed_at"`
}

func toOrderResponse(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		IsPaid:      o.IsPaid,
		Breakdown:   o.Breakdown,
		Items:       o.Items,
		PlacedAt:    o.CreatedAt,
	}
}

// UpdateOrderStatusRequest 是履约/后台侧的状态流转操作。
type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}
