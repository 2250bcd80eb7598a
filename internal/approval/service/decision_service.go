package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DecisionService 审批决策服务 —— 审批人对待办任务的五种处理
type DecisionService struct {
	db    *gorm.DB
	repos *repository.Repositories
	eng   *engine.Engine
}

// NewDecisionService 创建审批决策服务
func NewDecisionService(db *gorm.DB, repos *repository.Repositories, eng *engine.Engine) *DecisionService {
	return &DecisionService{db: db, repos: repos, eng: eng}
}

// loadInstance 事务内加载任务对应的实例
func (s *DecisionService) loadInstance(tx *gorm.DB, instanceID string) (*entity.ApprovalInstance, error) {
	var inst entity.ApprovalInstance
	err := tx.Where("id = ?", instanceID).First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("审批实例不存在: %w", engine.ErrNotFound)
		}
		return nil, err
	}
	return &inst, nil
}

// operatorName 查操作人显示名，查不到返回空串
func (s *DecisionService) operatorName(ctx context.Context, userID string) string {
	user, err := s.repos.User.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}

// Approve 同意
func (s *DecisionService) Approve(ctx context.Context, taskID, userID, comment string, attachments entity.JSONB) (*entity.ApprovalTask, error) {
	operatorName := s.operatorName(ctx, userID)

	var task *entity.ApprovalTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verr error
		task, verr = s.eng.ValidateTask(tx, taskID, userID)
		if verr != nil {
			return verr
		}
		inst, ierr := s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		nodeDone, perr := s.eng.Executor().ProcessApproval(ctx, tx, task, comment, attachments)
		if perr != nil {
			return fmt.Errorf("处理同意动作失败: %w", perr)
		}

		if lerr := s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionApprove,
			FromStatus:   entity.TaskStatusPending,
			ToStatus:     entity.TaskStatusCompleted,
			Comment:      comment,
		}); lerr != nil {
			return lerr
		}

		if nodeDone {
			return s.eng.AdvanceFrom(ctx, tx, inst, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Reject 拒绝
// rejectTo 决定去向：START（默认）终审拒绝；PREV 退回上一节点；
// 其他取值按节点ID解析，解析失败一律落到终审拒绝
func (s *DecisionService) Reject(ctx context.Context, taskID, userID, comment, rejectTo string, attachments entity.JSONB) (*entity.ApprovalTask, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("必须填写拒绝原因: %w", engine.ErrInvalid)
	}
	operatorName := s.operatorName(ctx, userID)

	var task *entity.ApprovalTask
	var rejectedInst *entity.ApprovalInstance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verr error
		task, verr = s.eng.ValidateTask(tx, taskID, userID)
		if verr != nil {
			return verr
		}
		inst, ierr := s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		if perr := s.eng.Executor().ProcessRejection(ctx, tx, task, comment, attachments); perr != nil {
			return fmt.Errorf("处理拒绝动作失败: %w", perr)
		}

		if lerr := s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionReject,
			FromStatus:   entity.TaskStatusPending,
			ToStatus:     entity.TaskStatusCompleted,
			Comment:      comment,
			Detail:       entity.JSONB{"reject_to": rejectTo},
		}); lerr != nil {
			return lerr
		}

		switch rejectTo {
		case "", entity.RejectToStart:
			rejectedInst = inst
			return s.rejectInstance(ctx, tx, inst)

		case entity.RejectToPrev:
			node, nerr := s.eng.FindNode(tx, task.NodeID)
			if nerr != nil {
				return nerr
			}
			var prev *entity.ApprovalNodeDefinition
			if node != nil {
				prev, nerr = s.eng.PrevNode(tx, node)
				if nerr != nil {
					return nerr
				}
			}
			if prev == nil {
				rejectedInst = inst
				return s.rejectInstance(ctx, tx, inst)
			}
			return s.eng.ReturnToNode(ctx, tx, inst, prev)

		default:
			target, nerr := s.eng.FindNode(tx, rejectTo)
			if nerr != nil {
				return nerr
			}
			if target == nil || target.FlowID != inst.FlowID {
				rejectedInst = inst
				return s.rejectInstance(ctx, tx, inst)
			}
			return s.eng.ReturnToNode(ctx, tx, inst, target)
		}
	})
	if err != nil {
		return nil, err
	}

	if rejectedInst != nil {
		if notifier := s.eng.Notifier(); notifier != nil {
			go notifier.InstanceCompleted(context.Background(), rejectedInst, entity.InstanceStatusRejected)
		}
	}
	return task, nil
}

// rejectInstance 终审拒绝：作废待办、置终态、回调业务适配器
func (s *DecisionService) rejectInstance(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	now := time.Now()
	err := tx.Model(&entity.ApprovalTask{}).
		Where("instance_id = ? AND status = ?", inst.ID, entity.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     entity.TaskStatusCancelled,
			"updated_at": now,
		}).Error
	if err != nil {
		return err
	}

	inst.Status = entity.InstanceStatusRejected
	inst.CompletedAt = &now
	inst.CurrentNodeID = nil
	if err := tx.Save(inst).Error; err != nil {
		return err
	}
	return s.eng.DispatchRejected(ctx, tx, inst)
}

// ReturnTo 退回指定节点
// 目标节点不存在时任务仍然完成，但实例不回退也不新建任务
func (s *DecisionService) ReturnTo(ctx context.Context, taskID, userID, targetNodeID, comment string) (*entity.ApprovalTask, error) {
	operatorName := s.operatorName(ctx, userID)

	var task *entity.ApprovalTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var verr error
		task, verr = s.eng.ValidateTask(tx, taskID, userID)
		if verr != nil {
			return verr
		}
		inst, ierr := s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		now := time.Now()
		action := entity.TaskActionReturn
		task.Status = entity.TaskStatusCompleted
		task.Action = &action
		task.Comment = comment
		task.ReturnToNodeID = &targetNodeID
		task.CompletedAt = &now
		if serr := tx.Save(task).Error; serr != nil {
			return serr
		}

		if lerr := s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionReturn,
			FromStatus:   entity.TaskStatusPending,
			ToStatus:     entity.TaskStatusCompleted,
			Comment:      comment,
			Detail:       entity.JSONB{"target_node_id": targetNodeID},
		}); lerr != nil {
			return lerr
		}

		target, nerr := s.eng.FindNode(tx, targetNodeID)
		if nerr != nil {
			return nerr
		}
		if target == nil {
			// 悬空目标：任务已完成，实例保持原状
			return nil
		}
		return s.eng.ReturnToNode(ctx, tx, inst, target)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Transfer 转办
func (s *DecisionService) Transfer(ctx context.Context, taskID, userID, targetUserID, comment string) (*entity.ApprovalTask, error) {
	operatorName := s.operatorName(ctx, userID)

	var newTask *entity.ApprovalTask
	var inst *entity.ApprovalInstance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, verr := s.eng.ValidateTask(tx, taskID, userID)
		if verr != nil {
			return verr
		}
		var ierr error
		inst, ierr = s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		node, nerr := s.eng.FindNode(tx, task.NodeID)
		if nerr != nil {
			return nerr
		}
		if node == nil {
			return fmt.Errorf("审批节点不存在: %w", engine.ErrNotFound)
		}
		if !node.CanTransfer {
			return fmt.Errorf("该节点不允许转办: %w", engine.ErrNodePolicy)
		}

		var target entity.User
		if uerr := tx.Where("id = ?", targetUserID).First(&target).Error; uerr != nil {
			if errors.Is(uerr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("转办目标用户不存在: %w", engine.ErrNotFound)
			}
			return uerr
		}

		now := time.Now()
		task.Status = entity.TaskStatusTransferred
		task.Comment = comment
		task.CompletedAt = &now
		if serr := tx.Save(task).Error; serr != nil {
			return serr
		}

		newTask = &entity.ApprovalTask{
			ID:                 uuid.New().String(),
			InstanceID:         task.InstanceID,
			NodeID:             task.NodeID,
			NodeOrder:          task.NodeOrder,
			AssigneeID:         target.ID,
			AssigneeType:       entity.AssigneeTypeTransferred,
			OriginalAssigneeID: &task.AssigneeID,
			Status:             entity.TaskStatusPending,
			Countersign:        task.Countersign,
			DueAt:              task.DueAt,
		}
		if cerr := tx.Create(newTask).Error; cerr != nil {
			return cerr
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionTransfer,
			FromStatus:   entity.TaskStatusPending,
			ToStatus:     entity.TaskStatusTransferred,
			Comment:      comment,
			Detail:       entity.JSONB{"target_user_id": targetUserID},
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		go notifier.TaskCreated(context.Background(), inst, newTask)
	}
	return newTask, nil
}

// AddApprover 加签
// BEFORE：新审批人先审，原任务跳过；AFTER：原任务照常，后续任务先以 SKIPPED 落库
func (s *DecisionService) AddApprover(ctx context.Context, taskID, userID string, approverIDs []string, position, comment string) ([]entity.ApprovalTask, error) {
	position = strings.ToUpper(position)
	if position != entity.AddPositionBefore && position != entity.AddPositionAfter {
		return nil, fmt.Errorf("加签位置必须为 BEFORE 或 AFTER: %w", engine.ErrInvalid)
	}
	operatorName := s.operatorName(ctx, userID)

	var created []entity.ApprovalTask
	var inst *entity.ApprovalInstance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, verr := s.eng.ValidateTask(tx, taskID, userID)
		if verr != nil {
			return verr
		}
		var ierr error
		inst, ierr = s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		node, nerr := s.eng.FindNode(tx, task.NodeID)
		if nerr != nil {
			return nerr
		}
		if node == nil {
			return fmt.Errorf("审批节点不存在: %w", engine.ErrNotFound)
		}
		if !node.CanAddApprover {
			return fmt.Errorf("该节点不允许加签: %w", engine.ErrNodePolicy)
		}

		for _, approverID := range approverIDs {
			var approver entity.User
			uerr := tx.Where("id = ?", approverID).First(&approver).Error
			if uerr != nil {
				if errors.Is(uerr, gorm.ErrRecordNotFound) {
					// 不存在的用户静默跳过
					continue
				}
				return uerr
			}

			newTask := entity.ApprovalTask{
				ID:                 uuid.New().String(),
				InstanceID:         task.InstanceID,
				NodeID:             task.NodeID,
				NodeOrder:          task.NodeOrder,
				AssigneeID:         approver.ID,
				OriginalAssigneeID: &task.AssigneeID,
				Countersign:        task.Countersign,
				DueAt:              task.DueAt,
			}
			if position == entity.AddPositionBefore {
				newTask.AssigneeType = entity.AssigneeTypeAddedBefore
				newTask.Status = entity.TaskStatusPending
			} else {
				newTask.AssigneeType = entity.AssigneeTypeAddedAfter
				newTask.Status = entity.TaskStatusSkipped
			}
			if cerr := tx.Create(&newTask).Error; cerr != nil {
				return cerr
			}
			created = append(created, newTask)
		}

		action := entity.ActionAddApproverAfter
		toStatus := task.Status
		if position == entity.AddPositionBefore {
			action = entity.ActionAddApproverBefore
			// 一个前加签人都没落地时原任务必须保持待办，否则节点上没有任何待办、流程卡死
			if len(created) > 0 {
				task.Status = entity.TaskStatusSkipped
				if serr := tx.Save(task).Error; serr != nil {
					return serr
				}
				toStatus = entity.TaskStatusSkipped
			}
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       action,
			FromStatus:   entity.TaskStatusPending,
			ToStatus:     toStatus,
			Comment:      comment,
			Detail:       entity.JSONB{"approver_ids": approverIDs, "position": position},
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil && position == entity.AddPositionBefore {
		for i := range created {
			task := created[i]
			go notifier.TaskCreated(context.Background(), inst, &task)
		}
	}
	return created, nil
}
