package repository

import (
	"context"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// CarbonCopyRepository 审批抄送仓库
type CarbonCopyRepository struct {
	db *gorm.DB
}

// NewCarbonCopyRepository 创建审批抄送仓库
func NewCarbonCopyRepository(db *gorm.DB) *CarbonCopyRepository {
	return &CarbonCopyRepository{db: db}
}

// ListByInstance 获取实例的抄送记录
func (r *CarbonCopyRepository) ListByInstance(ctx context.Context, instanceID string) ([]entity.ApprovalCarbonCopy, error) {
	var ccs []entity.ApprovalCarbonCopy
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Preload("User").
		Order("created_at ASC").
		Find(&ccs).Error
	return ccs, err
}

// ListByUser 获取抄送给某人的记录（分页）
func (r *CarbonCopyRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalCarbonCopy, int64, error) {
	var ccs []entity.ApprovalCarbonCopy
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.ApprovalCarbonCopy{}).
		Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Instance").
		Preload("Instance.Initiator").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&ccs).Error

	return ccs, total, err
}

// MarkRead 标记抄送已读
func (r *CarbonCopyRepository) MarkRead(ctx context.Context, id, userID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.ApprovalCarbonCopy{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": now,
		}).Error
}
