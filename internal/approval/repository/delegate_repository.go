package repository

import (
	"context"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// DelegateRepository 审批委托仓库
type DelegateRepository struct {
	db *gorm.DB
}

// NewDelegateRepository 创建审批委托仓库
func NewDelegateRepository(db *gorm.DB) *DelegateRepository {
	return &DelegateRepository{db: db}
}

// Create 创建委托
func (r *DelegateRepository) Create(ctx context.Context, delegate *entity.ApprovalDelegate) error {
	return r.db.WithContext(ctx).Create(delegate).Error
}

// FindActive 查找某人当前生效的委托（模板专属优先于全模板委托）
func (r *DelegateRepository) FindActive(ctx context.Context, ownerID, templateID string, at time.Time) (*entity.ApprovalDelegate, error) {
	var delegates []entity.ApprovalDelegate
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ? AND start_at <= ? AND end_at > ?",
			ownerID, entity.DelegateStatusActive, at, at).
		Where("template_id IS NULL OR template_id = ?", templateID).
		Order("template_id NULLS LAST").
		Find(&delegates).Error
	if err != nil {
		return nil, err
	}
	if len(delegates) == 0 {
		return nil, nil
	}
	return &delegates[0], nil
}

// ListByOwner 获取某人创建的委托
func (r *DelegateRepository) ListByOwner(ctx context.Context, ownerID string) ([]entity.ApprovalDelegate, error) {
	var delegates []entity.ApprovalDelegate
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Preload("Delegate").
		Order("created_at DESC").
		Find(&delegates).Error
	return delegates, err
}

// Disable 停用委托
func (r *DelegateRepository) Disable(ctx context.Context, id, ownerID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ApprovalDelegate{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("status", entity.DelegateStatusDisabled).Error
}
