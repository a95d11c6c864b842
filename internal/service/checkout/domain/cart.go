// internal/service/checkout/domain/cart.go
package domain

// 金额一律使用最小货币单位的 int64，避免浮点误差。

// Product 是目录中一件商品的只读快照。
type Product struct {
	ID         string
	Name       string
	CategoryID string
	Price      int64
	Stock      int
	WeightGram int
}

// CartLine 是客户端提交的一行购物车。
// AssertedUnitPrice 只用于与目录价比对，绝不参与计算。
type CartLine struct {
	ProductID         string
	Quantity          int
	AssertedUnitPrice int64
}

// VerifiedLine 是通过价格与库存校验后的一行，
// 名称、类目、单价都在校验时刻快照，后续目录变更不影响它。
type VerifiedLine struct {
	ProductID  string
	Name       string
	CategoryID string
	UnitPrice  int64
	Quantity   int
}

func (l VerifiedLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// VerifyLines 用目录快照逐行校验购物车。任何一行价格不符或库存不足，
// 整个提交失败——不做部分接受，也不做静默纠正。
// 返回校验后的行与 itemsTotal（按目录价汇总）。
func VerifyLines(lines []CartLine, catalog map[string]Product) ([]VerifiedLine, int64, error) {
	if len(lines) == 0 {
		return nil, 0, NewValidationError("cart is empty")
	}

	verified := make([]VerifiedLine, 0, len(lines))
	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, 0, NewValidationError("invalid quantity %d for product %s", line.Quantity, line.ProductID)
		}
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, 0, NewValidationError("unknown product %s", line.ProductID)
		}
		if product.Price != line.AssertedUnitPrice {
			return nil, 0, &PriceMismatchError{
				ProductID: line.ProductID,
				Asserted:  line.AssertedUnitPrice,
				Canonical: product.Price,
			}
		}
		if line.Quantity > product.Stock {
			return nil, 0, &InsufficientStockError{
				ProductID: line.ProductID,
				Name:      product.Name,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}

		// 即便比对通过，后续计算也只用目录价
		v := VerifiedLine{
			ProductID:  product.ID,
			Name:       product.Name,
			CategoryID: product.CategoryID,
			UnitPrice:  product.Price,
			Quantity:   line.Quantity,
		}
		verified = append(verified, v)
		total += v.Subtotal()
	}
	return verified, total, nil
}

// CategoryIDs 返回去重后的类目列表，供优惠范围匹配使用。
func CategoryIDs(lines []VerifiedLine) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.CategoryID == "" {
			continue
		}
		if _, ok := seen[l.CategoryID]; ok {
			continue
		}
		seen[l.CategoryID] = struct{}{}
		out = append(out, l.CategoryID)
	}
	return out
}

// ProductIDs 返回行内的商品 ID 列表。
func ProductIDs(lines []VerifiedLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.ProductID)
	}
	return out
}
