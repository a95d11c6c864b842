// internal/service/checkout/domain/ports.go
package domain

import (
	"context"
	"time"
)

// 出站端口。位于领域层，由基础设施层实现。

// CatalogReader 提供目录的只读访问。
type CatalogReader interface {
	// GetProducts 批量获取商品快照，结果以 ID 为键；缺失的 ID 不在结果里。
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
}

// PromotionRepository 提供优惠规则与用量账本的读取。
// 账本写入不在这里：用量随订单创建在同一事务内提交（见 OrderRepository.Create）。
type PromotionRepository interface {
	// FindByCode 按归一化后的码查找，不存在时返回 ErrNotFound。
	FindByCode(ctx context.Context, code string) (*Promotion, error)
	GlobalUsageCount(ctx context.Context, promotionID int64) (int64, error)
	IdentityUsageCount(ctx context.Context, promotionID int64, identity string) (int64, error)
}

// UsageRecord 是用量账本的一条追加记录。
type UsageRecord struct {
	PromotionID    int64
	Identity       string
	OrderID        string
	OrderValue     int64
	DiscountAmount int64
	UsedAt         time.Time
}

// OrderRepository 是订单聚合的持久化接口。
type OrderRepository interface {
	// Create 创建订单；usage 非 nil 时，用量账本在同一数据库事务内落账。
	// 订单号撞唯一索引返回 ErrDuplicateOrderNo，
	// 支付引用撞唯一索引返回 ErrDuplicateOrderRef（回调重放的兜底）。
	Create(ctx context.Context, order *Order, usage *UsageRecord) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*Order, error)
	UpdateStatus(ctx context.Context, order *Order) error
}

// TransitionResult 是预订单条件状态迁移的结果。
type TransitionResult string

const (
	TransitionApplied  TransitionResult = "applied"  // 本次调用完成了迁移
	TransitionNoop     TransitionResult = "noop"     // 已处于目标态或其后继态，幂等返回
	TransitionRejected TransitionResult = "rejected" // 当前状态不允许此迁移
)

// ReservationStore 管理短时预订单。所有状态迁移都是原子的
// update-if-current-status-is-X，并发的重复回调会在这里被串行化。
type ReservationStore interface {
	Create(ctx context.Context, r *Reservation) error
	// Get 不存在时返回 ErrNotFound。
	Get(ctx context.Context, externalRef string) (*Reservation, error)
	MarkPaid(ctx context.Context, externalRef, paymentRef, signature string, at time.Time) (TransitionResult, error)
	MarkPaymentFailed(ctx context.Context, externalRef string) (TransitionResult, error)
	MarkConverted(ctx context.Context, externalRef, orderID string) (TransitionResult, error)
	// ExpireDue 把截至 now 已过期且仍在等待支付的预订单置为 CANCELLED，
	// 返回本次取消的 ref 列表。迁移幂等，多实例并发清扫也是安全的。
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PaymentGateway 是外部支付网关的出站端口。调用同步、带超时、不重试。
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (intentID string, err error)
}

// NotificationProducer 在订单物化后投递通知，失败只记日志。
type NotificationProducer interface {
	OrderPlaced(ctx context.Context, ev *OrderPlacedEvent) error
}

// AuditSink 是追加式审计通道。实现必须尽力而为：
// 不阻塞调用方，也绝不让审计失败影响响应。
type AuditSink interface {
	Write(ctx context.Context, ev *AuditEvent)
}

// RateLimiter 是滑动窗口限流器。
type RateLimiter interface {
	// Allow 在窗口内为 key 记一次调用，返回是否放行。
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Fact 是规则引擎评估用的事实集。
type Fact struct {
	OrderValue  int64    `json:"order_value"`
	CategoryIDs []string `json:"category_ids"`
	ProductIDs  []string `json:"product_ids"`
	Identity    string   `json:"identity"`
}

// RuleEngine 评估优惠上的扩展规则表达式。
type RuleEngine interface {
	Evaluate(expression string, fact Fact) (bool, error)
}

// PricingConfigSource 提供当前计价配置；实现可按请求拉取或带失效缓存。
type PricingConfigSource interface {
	Current(ctx context.Context) (PricingConfig, error)
}
