package repository

import (
	"context"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// ActionLogRepository 审批动作日志仓库
type ActionLogRepository struct {
	db *gorm.DB
}

// NewActionLogRepository 创建审批动作日志仓库
func NewActionLogRepository(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Create 写入日志
func (r *ActionLogRepository) Create(ctx context.Context, log *entity.ApprovalActionLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByInstance 获取实例的操作流水（按动作时间升序）
func (r *ActionLogRepository) ListByInstance(ctx context.Context, instanceID string) ([]entity.ApprovalActionLog, error) {
	var logs []entity.ApprovalActionLog
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Preload("Operator").
		Order("action_at ASC, created_at ASC").
		Find(&logs).Error
	return logs, err
}
