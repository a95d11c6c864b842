// internal/service/checkout/domain/promotion.go
package domain

import (
	"strings"
	"time"
)

// PromotionKind 是优惠的计算方式，封闭枚举，每种对应一个折扣算法。
type PromotionKind string

const (
	KindPercentage   PromotionKind = "PERCENTAGE"    // 按比例折扣，可设上限
	KindFixed        PromotionKind = "FIXED"         // 立减固定金额
	KindFreeShipping PromotionKind = "FREE_SHIPPING" // 免邮，金额折扣为 0
)

// PromotionScope 限定优惠的适用范围。
type PromotionScope string

const (
	ScopeAll      PromotionScope = "ALL"
	ScopeCategory PromotionScope = "CATEGORY"
	ScopeProduct  PromotionScope = "PRODUCT"
)

// Promotion 是一条优惠规则。Value 的含义取决于 Kind：
// 百分比时是 0-100 的整数，立减时是最小货币单位金额。
type Promotion struct {
	ID          int64
	Code        string // 已归一化（大写、去空白）
	Kind        PromotionKind
	Value       int64
	Scope       PromotionScope
	ScopeValues []string // 类目或商品 ID 列表，Scope 为 ALL 时为空

	MinOrderValue int64
	MaxDiscount   int64 // 仅对百分比生效，0 表示无上限

	ValidFrom  time.Time
	ValidUntil time.Time

	GlobalUsageLimit      int64 // 0 表示不限
	PerIdentityUsageLimit int64 // 0 表示不限

	Active bool

	// RuleExpression 是可选的 CEL 表达式，作为内置范围检查之外的扩展点。
	// 由应用层通过规则引擎评估，表达式为假时按 not-applicable 处理。
	RuleExpression string
}

// NormalizeCode 统一优惠码的书写形式，查找与存储都按归一化后的码进行。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsCurrentlyValid 判断优惠在 now 时刻是否有效：
// 激活、处于有效期（按自然日闭区间）、且全局用量未达上限。
func (p *Promotion) IsCurrentlyValid(now time.Time, globalUsage int64) bool {
	if !p.Active {
		return false
	}
	if !p.withinWindow(now) {
		return false
	}
	if p.GlobalUsageLimit > 0 && globalUsage >= p.GlobalUsageLimit {
		return false
	}
	return true
}

func (p *Promotion) withinWindow(now time.Time) bool {
	start := startOfDay(p.ValidFrom)
	end := endOfDay(p.ValidUntil)
	return !now.Before(start) && !now.After(end)
}

// Discount 是一次评估的结果。
type Discount struct {
	Amount       int64
	FreeShipping bool
}

// EvalInput 汇集评估所需的全部事实。用量计数以快照形式传入，
// 评估本身保持纯函数：反复调用（比如用户不断改购物车）没有任何副作用。
type EvalInput struct {
	OrderValue    int64
	CategoryIDs   []string
	ProductIDs    []string
	Identity      string
	IdentityUsage int64
	GlobalUsage   int64
	Now           time.Time
}

// Evaluate 按固定顺序短路校验，全部通过后计算折扣。
// 校验顺序：激活 -> 有效期 -> 起用门槛 -> 适用范围 -> 个人限次 -> 全局限量。
func (p *Promotion) Evaluate(in EvalInput) (Discount, error) {
	if !p.Active {
		return Discount{}, newPromotionError(PromoNotFound, "promotion code %s is not available", p.Code)
	}
	if !p.withinWindow(in.Now) {
		return Discount{}, newPromotionError(PromoExpired, "promotion code %s is not active on this date", p.Code)
	}
	if in.OrderValue < p.MinOrderValue {
		shortfall := p.MinOrderValue - in.OrderValue
		return Discount{}, newPromotionError(PromoBelowMinimum,
			"order value is %d short of the %d minimum", shortfall, p.MinOrderValue)
	}
	if !p.appliesTo(in.CategoryIDs, in.ProductIDs) {
		return Discount{}, newPromotionError(PromoNotApplicable, "promotion does not apply to these items")
	}
	if in.Identity != "" && p.PerIdentityUsageLimit > 0 && in.IdentityUsage >= p.PerIdentityUsageLimit {
		return Discount{}, newPromotionError(PromoUsageExceeded, "promotion usage limit reached for this account")
	}
	if p.GlobalUsageLimit > 0 && in.GlobalUsage >= p.GlobalUsageLimit {
		return Discount{}, newPromotionError(PromoExhausted, "promotion has been fully redeemed")
	}

	return p.computeDiscount(in.OrderValue), nil
}

// computeDiscount 按 Kind 穷举计算。新增 Kind 时编译器会强迫这里补齐分支。
func (p *Promotion) computeDiscount(orderValue int64) Discount {
	switch p.Kind {
	case KindPercentage:
		amount := roundPercent(orderValue, float64(p.Value))
		if p.MaxDiscount > 0 && amount > p.MaxDiscount {
			amount = p.MaxDiscount
		}
		return Discount{Amount: amount}
	case KindFixed:
		amount := p.Value
		if amount > orderValue {
			amount = orderValue // 立减不超过被折扣的订单金额
		}
		return Discount{Amount: amount}
	case KindFreeShipping:
		return Discount{FreeShipping: true}
	default:
		return Discount{}
	}
}

func (p *Promotion) appliesTo(categoryIDs, productIDs []string) bool {
	switch p.Scope {
	case ScopeAll, "":
		return true
	case ScopeCategory:
		return intersects(p.ScopeValues, categoryIDs)
	case ScopeProduct:
		return intersects(p.ScopeValues, productIDs)
	default:
		return false
	}
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
