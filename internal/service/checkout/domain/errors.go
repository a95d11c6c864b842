// internal/service/checkout/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 结算流程的错误分类。校验类错误在接口层被恢复并映射为带稳定
// 机器码的 4xx 响应；其余错误统一按内部错误处理，不向客户端泄露细节。
var (
	ErrNotFound           = errors.New("resource not found")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrSignatureInvalid   = errors.New("payment callback signature invalid")
	ErrReservationExpired = errors.New("payment reservation expired")
	ErrPromotionInvalid   = errors.New("promotion invalid")
	ErrDuplicateOrderNo   = errors.New("order number already exists")
	ErrDuplicateOrderRef  = errors.New("order for this payment reference already exists")
	ErrInvalidTransition  = errors.New("illegal order status transition")
)

// ValidationError 表示请求本身不合法（缺字段、数量非法等）。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PriceMismatchError 表示客户端声称的价格与目录价不一致。
// 任何一行不一致都会整单拒绝——价格不符本身就是篡改信号。
type PriceMismatchError struct {
	ProductID string
	Asserted  int64
	Canonical int64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch for product %s: asserted %d, canonical %d",
		e.ProductID, e.Asserted, e.Canonical)
}

// InsufficientStockError 表示请求数量超过当前库存。
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

// AmountMismatchError 表示调用方给出的期望总额与服务端重新计算的总额不符。
// 这是独立于价格校验的第二道防线。
type AmountMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: caller expected %d, computed %d", e.Expected, e.Actual)
}

// PromotionSubcode 是优惠券校验失败的机器可读子码。
type PromotionSubcode string

const (
	PromoNotFound      PromotionSubcode = "not-found"
	PromoExpired       PromotionSubcode = "expired"
	PromoBelowMinimum  PromotionSubcode = "below-minimum"
	PromoNotApplicable PromotionSubcode = "not-applicable"
	PromoUsageExceeded PromotionSubcode = "usage-exceeded"
	PromoExhausted     PromotionSubcode = "exhausted"
)

// PromotionError 携带子码和面向用户的提示语。
// errors.Is(err, ErrPromotionInvalid) 可以匹配所有子码。
type PromotionError struct {
	Subcode PromotionSubcode
	Message string
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("promotion invalid (%s): %s", e.Subcode, e.Message)
}

func (e *PromotionError) Is(target error) bool {
	return target == ErrPromotionInvalid
}

func newPromotionError(sub PromotionSubcode, format string, args ...interface{}) *PromotionError {
	return &PromotionError{Subcode: sub, Message: fmt.Sprintf(format, args...)}
}
