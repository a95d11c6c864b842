// internal/service/checkout/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// ProductModel 对应目录的 products 表。本服务只读。
type ProductModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string
	CategoryID string `gorm:"index;size:64"`
	Price      int64
	Stock      int
	WeightGram int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProductModel) TableName() string {
	return "products"
}

// PromotionModel 对应 promotions 表。
type PromotionModel struct {
	gorm.Model
	Code        string `gorm:"uniqueIndex;size:64"`
	Kind        string `gorm:"size:32"`
	Value       int64
	Scope       string `gorm:"size:32"`
	ScopeValues string `gorm:"type:text"` // 逗号分隔的类目/商品 ID

	MinOrderValue int64
	MaxDiscount   int64

	ValidFrom  time.Time
	ValidUntil time.Time

	GlobalUsageLimit      int64
	PerIdentityUsageLimit int64

	Active bool `gorm:"default:true"`

	RuleExpression string `gorm:"type:text"`
}

func (PromotionModel) TableName() string {
	return "promotions"
}

// PromotionUsageModel 是只追加的用量账本。
type PromotionUsageModel struct {
	gorm.Model
	PromotionID    uint   `gorm:"index:idx_usage_promo_identity"`
	Identity       string `gorm:"index:idx_usage_promo_identity;size:64"`
	OrderID        string `gorm:"size:64"`
	OrderValue     int64
	DiscountAmount int64
	UsedAt         time.Time
}

func (PromotionUsageModel) TableName() string {
	return "promotion_usages"
}

// OrderModel 对应 orders 表。
type OrderModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	OrderNumber string `gorm:"uniqueIndex:idx_orders_order_number;size:64"`
	Identity    string `gorm:"index;size:64"`

	// 网关支付的 intent ID；唯一索引是回调重放防重的最后一道闸。
	// COD 订单此列为 NULL，不参与唯一性。
	ExternalPaymentRef sql.NullString `gorm:"uniqueIndex:idx_orders_external_ref;size:128"`
	PaymentRef         string         `gorm:"size:128"`
	PaymentMethod      string         `gorm:"size:16"`
	PromoCode          string         `gorm:"size:64"`

	ItemsTotal int64
	Shipping   int64
	Tax        int64
	Discount   int64
	GrandTotal int64

	AddressJSON string `gorm:"type:text"`

	Status      string `gorm:"size:32"`
	IsPaid      bool
	CodVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 是物化时刻的行快照。
type OrderItemModel struct {
	gorm.Model
	OrderID   string `gorm:"index;size:64"`
	ProductID string `gorm:"size:64"`
	Name      string
	UnitPrice int64
	Quantity  int
}

func (OrderItemModel) TableName() string {
	return "order_items"
}
