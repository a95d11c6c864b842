// internal/service/checkout/infrastructure/pricing_source.go
package infrastructure

import (
	"context"

	"vertex/internal/pkg/bootstrap"
	"vertex/internal/service/checkout/domain"
)

// ConfigPricingSource 从当前配置快照读取计价参数。
// Pricing 段由配置中心热替换，因此每次请求读取到的都是最新值，
// 而单次请求内只读一次快照，计价过程内部自洽。
type ConfigPricingSource struct{}

func (ConfigPricingSource) Current(ctx context.Context) (domain.PricingConfig, error) {
	p := bootstrap.GetCurrentConfig().Pricing
	return domain.PricingConfig{
		TaxRatePercent:        p.TaxRatePercent,
		ShippingRate:          p.ShippingRate,
		FreeShippingThreshold: p.FreeShippingThreshold,
		CodSurcharge:          p.CodSurcharge,
	}, nil
}
