package repository

import (
	"context"
	"errors"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// TaskRepository 审批任务仓库
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建审批任务仓库
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindByID 根据ID查找任务
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalTask, error) {
	var task entity.ApprovalTask
	err := r.db.WithContext(ctx).
		Preload("Instance").
		Preload("Node").
		Preload("Assignee").
		Where("id = ?", id).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Create 创建任务
func (r *TaskRepository) Create(ctx context.Context, task *entity.ApprovalTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// CreateBatch 批量创建任务
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []entity.ApprovalTask) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

// Update 更新任务
func (r *TaskRepository) Update(ctx context.Context, task *entity.ApprovalTask) error {
	return r.db.WithContext(ctx).Save(task).Error
}

// ListByInstance 获取实例的全部任务
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]entity.ApprovalTask, error) {
	var tasks []entity.ApprovalTask
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Preload("Assignee").
		Preload("Node").
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListPendingByInstance 获取实例的全部待办任务
func (r *TaskRepository) ListPendingByInstance(ctx context.Context, instanceID string) ([]entity.ApprovalTask, error) {
	var tasks []entity.ApprovalTask
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND status = ?", instanceID, entity.TaskStatusPending).
		Find(&tasks).Error
	return tasks, err
}

// ListPendingByAssignee 获取某人的待办任务（分页）
func (r *TaskRepository) ListPendingByAssignee(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalTask, int64, error) {
	var tasks []entity.ApprovalTask
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.ApprovalTask{}).
		Where("assignee_id = ? AND status = ?", userID, entity.TaskStatusPending)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Instance").
		Preload("Instance.Initiator").
		Preload("Node").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&tasks).Error

	return tasks, total, err
}

// ListHandledByAssignee 获取某人已处理的任务（分页）
func (r *TaskRepository) ListHandledByAssignee(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalTask, int64, error) {
	var tasks []entity.ApprovalTask
	var total int64

	query := r.db.WithContext(ctx).
		Model(&entity.ApprovalTask{}).
		Where("assignee_id = ? AND status = ?", userID, entity.TaskStatusCompleted)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Instance").
		Preload("Instance.Initiator").
		Preload("Node").
		Order("completed_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&tasks).Error

	return tasks, total, err
}
