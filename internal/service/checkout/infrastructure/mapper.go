// internal/service/checkout/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"encoding/json"
	"strings"

	"vertex/internal/service/checkout/domain"
)

func toDomainProduct(m *ProductModel) domain.Product {
	return domain.Product{
		ID:         m.ID,
		Name:       m.Name,
		CategoryID: m.CategoryID,
		Price:      m.Price,
		Stock:      m.Stock,
		WeightGram: m.WeightGram,
	}
}

func toDomainPromotion(m *PromotionModel) *domain.Promotion {
	var scopeValues []string
	if s := strings.TrimSpace(m.ScopeValues); s != "" {
		scopeValues = strings.Split(s, ",")
	}
	return &domain.Promotion{
		ID:                    int64(m.ID),
		Code:                  m.Code,
		Kind:                  domain.PromotionKind(m.Kind),
		Value:                 m.Value,
		Scope:                 domain.PromotionScope(m.Scope),
		ScopeValues:           scopeValues,
		MinOrderValue:         m.MinOrderValue,
		MaxDiscount:           m.MaxDiscount,
		ValidFrom:             m.ValidFrom,
		ValidUntil:            m.ValidUntil,
		GlobalUsageLimit:      m.GlobalUsageLimit,
		PerIdentityUsageLimit: m.PerIdentityUsageLimit,
		Active:                m.Active,
		RuleExpression:        m.RuleExpression,
	}
}

func fromDomainOrder(o *domain.Order) (*OrderModel, error) {
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, err
	}

	var extRef sql.NullString
	if o.ExternalPaymentRef != "" {
		extRef = sql.NullString{String: o.ExternalPaymentRef, Valid: true}
	}

	items := make([]OrderItemModel, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemModel{
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	return &OrderModel{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		Identity:           o.Identity,
		ExternalPaymentRef: extRef,
		PaymentRef:         o.PaymentRef,
		PaymentMethod:      string(o.PaymentMethod),
		PromoCode:          o.PromoCode,
		ItemsTotal:         o.Breakdown.ItemsTotal,
		Shipping:           o.Breakdown.Shipping,
		Tax:                o.Breakdown.Tax,
		Discount:           o.Breakdown.Discount,
		GrandTotal:         o.Breakdown.GrandTotal,
		AddressJSON:        string(addrJSON),
		Status:             string(o.Status),
		IsPaid:             o.IsPaid,
		CodVerified:        o.CodVerified,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		Items:              items,
	}, nil
}

func toDomainOrder(m *OrderModel) *domain.Order {
	var addr domain.Address
	// 地址快照损坏不致命，留空让上层照常返回其余字段
	_ = json.Unmarshal([]byte(m.AddressJSON), &addr)

	items := make([]domain.OrderItem, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	var extRef string
	if m.ExternalPaymentRef.Valid {
		extRef = m.ExternalPaymentRef.String
	}

	return &domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		Identity:    m.Identity,
		Items:       items,
		Breakdown: domain.PricingBreakdown{
			ItemsTotal: m.ItemsTotal,
			Shipping:   m.Shipping,
			Tax:        m.Tax,
			Discount:   m.Discount,
			GrandTotal: m.GrandTotal,
		},
		PromoCode:          m.PromoCode,
		PaymentMethod:      domain.PaymentMethod(m.PaymentMethod),
		ExternalPaymentRef: extRef,
		PaymentRef:         m.PaymentRef,
		ShippingAddress:    addr,
		Status:             domain.OrderStatus(m.Status),
		IsPaid:             m.IsPaid,
		CodVerified:        m.CodVerified,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func fromDomainUsage(u *domain.UsageRecord) *PromotionUsageModel {
	return &PromotionUsageModel{
		PromotionID:    uint(u.PromotionID),
		Identity:       u.Identity,
		OrderID:        u.OrderID,
		OrderValue:     u.OrderValue,
		DiscountAmount: u.DiscountAmount,
		UsedAt:         u.UsedAt,
	}
}
