// internal/service/checkout/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"vertex/internal/service/checkout/domain"
)

const mysqlDuplicateEntry = 1062

// GormCatalogRepository 是 CatalogReader 的 GORM 实现，只读。
type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

func (r *GormCatalogRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	var models []ProductModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(models))
	for i := range models {
		out[models[i].ID] = toDomainProduct(&models[i])
	}
	return out, nil
}

// GormPromotionRepository 是 PromotionRepository 的 GORM 实现。
type GormPromotionRepository struct {
	db *gorm.DB
}

func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

// FindByCode 按归一化后的码查找优惠。
func (r *GormPromotionRepository) FindByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	var model PromotionModel
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainPromotion(&model), nil
}

func (r *GormPromotionRepository) GlobalUsageCount(ctx context.Context, promotionID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PromotionUsageModel{}).
		Where("promotion_id = ?", promotionID).Count(&count).Error
	return count, err
}

func (r *GormPromotionRepository) IdentityUsageCount(ctx context.Context, promotionID int64, identity string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&PromotionUsageModel{}).
		Where("promotion_id = ? AND identity = ?", promotionID, identity).Count(&count).Error
	return count, err
}

// GormOrderRepository 是 OrderRepository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 在同一事务里写入订单、行快照和优惠用量账本。
// 这保证了用量提交与订单创建的一致性：事务回滚时账本不会多记。
func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order, usage *domain.UsageRecord) error {
	model, err := fromDomainOrder(order)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if usage != nil {
			if err := tx.Create(fromDomainUsage(usage)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return mapDuplicateKey(err)
}

// mapDuplicateKey 把 MySQL 1062 按命中的唯一索引翻译成领域错误。
func mapDuplicateKey(err error) error {
	if err == nil {
		return nil
	}
	var merr *mysql.MySQLError
	if errors.As(err, &merr) && merr.Number == mysqlDuplicateEntry {
		switch {
		case strings.Contains(merr.Message, "idx_orders_external_ref"):
			return domain.ErrDuplicateOrderRef
		case strings.Contains(merr.Message, "idx_orders_order_number"):
			return domain.ErrDuplicateOrderNo
		}
	}
	return err
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByExternalRef(ctx context.Context, externalRef string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("external_payment_ref = ?", externalRef).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainOrder(&model), nil
}

// UpdateStatus 只回写状态流转会改变的字段。
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	return r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":       string(order.Status),
			"is_paid":      order.IsPaid,
			"cod_verified": order.CodVerified,
			"updated_at":   order.UpdatedAt,
		}).Error
}
