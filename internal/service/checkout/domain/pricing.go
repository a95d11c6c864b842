// internal/service/checkout/domain/pricing.go
package domain

import "math"

// PricingConfig 是一次计价所需的全部外部参数。
// 它按调用显式传入，而不是从共享可变状态读取。
type PricingConfig struct {
	TaxRatePercent        float64
	ShippingRate          int64
	FreeShippingThreshold int64
	CodSurcharge          int64
}

// PricingBreakdown 是最终的价格拆解。
// 不变式: GrandTotal == max(0, ItemsTotal + Shipping + Tax - Discount)。
type PricingBreakdown struct {
	ItemsTotal int64 `json:"items_total"`
	Shipping   int64 `json:"shipping"`
	Tax        int64 `json:"tax"`
	Discount   int64 `json:"discount"`
	GrandTotal int64 `json:"grand_total"`
}

// BreakdownInput 汇集计价的各项输入。
type BreakdownInput struct {
	ItemsTotal    int64
	Discount      int64
	WaiveShipping bool  // 免邮类优惠生效时置位
	Surcharge     int64 // 货到付款附加费，随运费一并计税
}

// ComputeBreakdown 把已校验的商品总额、运费档位、税率和折扣合成最终拆解。
func ComputeBreakdown(in BreakdownInput, cfg PricingConfig) PricingBreakdown {
	shipping := cfg.ShippingRate
	if in.WaiveShipping || in.ItemsTotal >= cfg.FreeShippingThreshold {
		shipping = 0
	}
	shipping += in.Surcharge

	tax := roundPercent(in.ItemsTotal+shipping, cfg.TaxRatePercent)

	grand := in.ItemsTotal + shipping + tax - in.Discount
	if grand < 0 {
		grand = 0
	}

	return PricingBreakdown{
		ItemsTotal: in.ItemsTotal,
		Shipping:   shipping,
		Tax:        tax,
		Discount:   in.Discount,
		GrandTotal: grand,
	}
}

// CheckExpected 以小容差比对调用方给出的期望总额。
// 容差取 1 个最小货币单位与总额 1% 中的较大者，超出即整体拒绝。
func (b PricingBreakdown) CheckExpected(expected int64) error {
	diff := b.GrandTotal - expected
	if diff < 0 {
		diff = -diff
	}
	tolerance := roundPercent(b.GrandTotal, 1)
	if tolerance < 1 {
		tolerance = 1
	}
	if diff > tolerance {
		return &AmountMismatchError{Expected: expected, Actual: b.GrandTotal}
	}
	return nil
}

// roundPercent 按四舍五入计算 base 的 pct%。
func roundPercent(base int64, pct float64) int64 {
	return int64(math.Round(float64(base) * pct / 100))
}
