package engine

import (
	"context"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskExecutor 任务执行器 —— 节点展开与通过后的节点判定
type TaskExecutor interface {
	// CreateTasksForNode 为节点上的每个审批人创建一条待办
	CreateTasksForNode(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, node *entity.ApprovalNodeDefinition, assignees []string) ([]entity.ApprovalTask, error)
	// ProcessApproval 把任务置为通过，返回该节点是否已满足通过条件
	ProcessApproval(ctx context.Context, tx *gorm.DB, task *entity.ApprovalTask, comment string, attachments entity.JSONB) (bool, error)
	// ProcessRejection 把任务置为拒绝完成
	ProcessRejection(ctx context.Context, tx *gorm.DB, task *entity.ApprovalTask, comment string, attachments entity.JSONB) error
	// CreateCarbonCopies 为实例创建抄送记录（同实例同用户幂等），返回实际新建的记录
	CreateCarbonCopies(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, userIDs []string, source, createdBy string) ([]entity.ApprovalCarbonCopy, error)
}

// DefaultTaskExecutor 默认任务执行器
type DefaultTaskExecutor struct{}

// NewDefaultTaskExecutor 创建默认任务执行器
func NewDefaultTaskExecutor() *DefaultTaskExecutor {
	return &DefaultTaskExecutor{}
}

// CreateTasksForNode 创建节点待办
func (x *DefaultTaskExecutor) CreateTasksForNode(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, node *entity.ApprovalNodeDefinition, assignees []string) ([]entity.ApprovalTask, error) {
	tasks := make([]entity.ApprovalTask, 0, len(assignees))
	for _, userID := range assignees {
		tasks = append(tasks, entity.ApprovalTask{
			ID:           uuid.New().String(),
			InstanceID:   inst.ID,
			NodeID:       node.ID,
			NodeOrder:    node.NodeOrder,
			AssigneeID:   userID,
			AssigneeType: entity.AssigneeTypeNormal,
			Status:       entity.TaskStatusPending,
			Countersign:  node.Countersign,
		})
	}
	if len(tasks) == 0 {
		return tasks, nil
	}
	if err := tx.Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ProcessApproval 处理通过动作
// 会签节点：同节点还有其他待办时不算过；
// 或签节点：任一人通过即过，其余待办同事务作废
func (x *DefaultTaskExecutor) ProcessApproval(ctx context.Context, tx *gorm.DB, task *entity.ApprovalTask, comment string, attachments entity.JSONB) (bool, error) {
	now := time.Now()
	action := entity.TaskActionApprove
	task.Status = entity.TaskStatusCompleted
	task.Action = &action
	task.Comment = comment
	task.Attachments = attachments
	task.CompletedAt = &now
	if err := tx.Save(task).Error; err != nil {
		return false, err
	}

	if task.Countersign {
		var remaining int64
		err := tx.Model(&entity.ApprovalTask{}).
			Where("instance_id = ? AND node_id = ? AND status = ?",
				task.InstanceID, task.NodeID, entity.TaskStatusPending).
			Count(&remaining).Error
		if err != nil {
			return false, err
		}
		return remaining == 0, nil
	}

	// 或签：作废同节点其余待办
	err := tx.Model(&entity.ApprovalTask{}).
		Where("instance_id = ? AND node_id = ? AND status = ?",
			task.InstanceID, task.NodeID, entity.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     entity.TaskStatusCancelled,
			"updated_at": now,
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// ProcessRejection 处理拒绝动作
func (x *DefaultTaskExecutor) ProcessRejection(ctx context.Context, tx *gorm.DB, task *entity.ApprovalTask, comment string, attachments entity.JSONB) error {
	now := time.Now()
	action := entity.TaskActionReject
	task.Status = entity.TaskStatusCompleted
	task.Action = &action
	task.Comment = comment
	task.Attachments = attachments
	task.CompletedAt = &now
	return tx.Save(task).Error
}

// CreateCarbonCopies 批量创建抄送记录，重复抄送同一人时跳过
func (x *DefaultTaskExecutor) CreateCarbonCopies(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, userIDs []string, source, createdBy string) ([]entity.ApprovalCarbonCopy, error) {
	created := make([]entity.ApprovalCarbonCopy, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" {
			continue
		}
		var count int64
		err := tx.Model(&entity.ApprovalCarbonCopy{}).
			Where("instance_id = ? AND user_id = ?", inst.ID, userID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}
		cc := entity.ApprovalCarbonCopy{
			ID:         uuid.New().String(),
			InstanceID: inst.ID,
			UserID:     userID,
			Source:     source,
			CreatedBy:  createdBy,
		}
		if err := tx.Create(&cc).Error; err != nil {
			return nil, err
		}
		created = append(created, cc)
	}
	return created, nil
}
