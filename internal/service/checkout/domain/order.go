// internal/service/checkout/domain/order.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus 是订单的履约状态。
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// PaymentMethod 区分网关支付与货到付款两条下单路径。
type PaymentMethod string

const (
	PaymentGatewayMethod PaymentMethod = "GATEWAY"
	PaymentCOD           PaymentMethod = "COD"
)

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// OrderItem 是物化时刻的商品快照，后续目录变更不影响历史订单。
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Order 是持久化的订单聚合。创建后只能通过状态流转方法修改。
type Order struct {
	ID          string
	OrderNumber string
	Identity    string

	Items     []OrderItem
	Breakdown PricingBreakdown
	PromoCode string

	PaymentMethod PaymentMethod
	// ExternalPaymentRef 关联网关支付的 intent ID（COD 订单为空）。
	// 它在订单表上有唯一索引，是回调重放时防止重复建单的最后一道闸。
	ExternalPaymentRef string
	PaymentRef         string

	ShippingAddress Address

	Status      OrderStatus
	IsPaid      bool
	CodVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderFromReservation 把一个已支付的预订单物化为订单。
func NewOrderFromReservation(r *Reservation, now time.Time) *Order {
	items := make([]OrderItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return &Order{
		ID:                 uuid.New().String(),
		OrderNumber:        NewOrderNumber(now),
		Identity:           r.Identity,
		Items:              items,
		Breakdown:          r.Breakdown,
		PromoCode:          r.PromoCode,
		PaymentMethod:      PaymentGatewayMethod,
		ExternalPaymentRef: r.ExternalPaymentRef,
		PaymentRef:         r.PaymentRef,
		ShippingAddress:    r.ShippingAddress,
		Status:             OrderConfirmed,
		IsPaid:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewCodOrder 直接创建一个货到付款订单，支付在履约时确认。
func NewCodOrder(identity, promoCode string, lines []VerifiedLine,
	breakdown PricingBreakdown, addr Address, now time.Time) *Order {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	return &Order{
		ID:              uuid.New().String(),
		OrderNumber:     NewOrderNumber(now),
		Identity:        identity,
		Items:           items,
		Breakdown:       breakdown,
		PromoCode:       promoCode,
		PaymentMethod:   PaymentCOD,
		ShippingAddress: addr,
		Status:          OrderConfirmed,
		IsPaid:          false,
		CodVerified:     false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewOrderNumber 生成人类可读的订单号：时间戳 + 随机后缀。
// 后缀来自 UUID，碰撞概率极低；万一撞上唯一索引，调用方重新生成重试。
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), suffix)
}

// RegenerateOrderNumber 在订单号冲突重试时换一个新号。
func (o *Order) RegenerateOrderNumber(now time.Time) {
	o.OrderNumber = NewOrderNumber(now)
}

// allowedTransitions 定义了履约侧合法的状态流转。
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled},
	OrderConfirmed:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// TransitionTo 执行一次状态流转，非法流转返回 ErrInvalidTransition。
// 货到付款订单在妥投时视为完成收款。
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	for _, next := range allowedTransitions[o.Status] {
		if next == to {
			o.Status = to
			o.UpdatedAt = now
			if to == OrderDelivered && o.PaymentMethod == PaymentCOD {
				o.IsPaid = true
				o.CodVerified = true
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
}
