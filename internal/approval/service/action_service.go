package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 催办节流间隔
const remindThrottle = time.Hour

// ActionService 审批辅助动作服务 —— 抄送、撤回、终止、催办、评论
type ActionService struct {
	db    *gorm.DB
	repos *repository.Repositories
	eng   *engine.Engine
	rdb   *redis.Client
}

// NewActionService 创建审批辅助动作服务
func NewActionService(db *gorm.DB, repos *repository.Repositories, eng *engine.Engine, rdb *redis.Client) *ActionService {
	return &ActionService{db: db, repos: repos, eng: eng, rdb: rdb}
}

func (s *ActionService) userName(ctx context.Context, userID string) string {
	user, err := s.repos.User.FindByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Name
}

func (s *ActionService) loadInstance(tx *gorm.DB, instanceID string) (*entity.ApprovalInstance, error) {
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

// AddCC 追加抄送
func (s *ActionService) AddCC(ctx context.Context, instanceID, userID string, ccUserIDs []string) ([]entity.ApprovalCarbonCopy, error) {
	operatorName := s.userName(ctx, userID)

	var inst *entity.ApprovalInstance
	var created []entity.ApprovalCarbonCopy

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ierr error
		inst, ierr = s.loadInstance(tx, instanceID)
		if ierr != nil {
			return ierr
		}

		var cerr error
		created, cerr = s.eng.Executor().CreateCarbonCopies(ctx, tx, inst, ccUserIDs, entity.CCSourceApprover, userID)
		if cerr != nil {
			return fmt.Errorf("创建抄送记录失败: %w", cerr)
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionAddCC,
			Detail:       entity.JSONB{"cc_user_ids": ccUserIDs},
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		for _, cc := range created {
			ccUserID := cc.UserID
			go notifier.CarbonCopied(context.Background(), inst, ccUserID)
		}
	}
	return created, nil
}

// Withdraw 撤回
// 仅发起人可撤回，且只能从 PENDING 或 DRAFT 撤回；撤回时作废全部待办并通知原审批人
func (s *ActionService) Withdraw(ctx context.Context, instanceID, userID string) (*entity.ApprovalInstance, error) {
	operatorName := s.userName(ctx, userID)

	var inst *entity.ApprovalInstance
	var pendingAssignees []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ierr error
		inst, ierr = s.loadInstance(tx, instanceID)
		if ierr != nil {
			return ierr
		}
		if inst.InitiatorID != userID {
			return fmt.Errorf("只有发起人可以撤回: %w", engine.ErrForbidden)
		}
		if entity.IsTerminalStatus(inst.Status) {
			return fmt.Errorf("当前状态 %s 不允许撤回: %w", inst.Status, engine.ErrStateConflict)
		}
		fromStatus := inst.Status

		var pending []entity.ApprovalTask
		if perr := tx.Where("instance_id = ? AND status = ?", inst.ID, entity.TaskStatusPending).
			Find(&pending).Error; perr != nil {
			return perr
		}
		for _, t := range pending {
			pendingAssignees = append(pendingAssignees, t.AssigneeID)
		}

		now := time.Now()
		if len(pending) > 0 {
			uerr := tx.Model(&entity.ApprovalTask{}).
				Where("instance_id = ? AND status = ?", inst.ID, entity.TaskStatusPending).
				Updates(map[string]interface{}{
					"status":     entity.TaskStatusCancelled,
					"updated_at": now,
				}).Error
			if uerr != nil {
				return uerr
			}
		}

		inst.Status = entity.InstanceStatusCancelled
		inst.CompletedAt = &now
		inst.CurrentNodeID = nil
		if serr := tx.Save(inst).Error; serr != nil {
			return serr
		}

		if derr := s.eng.DispatchWithdrawn(ctx, tx, inst); derr != nil {
			return derr
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionWithdraw,
			FromStatus:   fromStatus,
			ToStatus:     entity.InstanceStatusCancelled,
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		for _, assigneeID := range pendingAssignees {
			uid := assigneeID
			go notifier.InstanceClosed(context.Background(), inst, entity.InstanceStatusCancelled, uid)
		}
	}
	return inst, nil
}

// Terminate 强制终止（管理动作，仅 PENDING 可终止）
func (s *ActionService) Terminate(ctx context.Context, instanceID, userID, reason string) (*entity.ApprovalInstance, error) {
	operatorName := s.userName(ctx, userID)

	var inst *entity.ApprovalInstance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ierr error
		inst, ierr = s.loadInstance(tx, instanceID)
		if ierr != nil {
			return ierr
		}
		if inst.Status != entity.InstanceStatusPending {
			return fmt.Errorf("当前状态 %s 不允许终止: %w", inst.Status, engine.ErrStateConflict)
		}

		now := time.Now()
		uerr := tx.Model(&entity.ApprovalTask{}).
			Where("instance_id = ? AND status = ?", inst.ID, entity.TaskStatusPending).
			Updates(map[string]interface{}{
				"status":     entity.TaskStatusCancelled,
				"updated_at": now,
			}).Error
		if uerr != nil {
			return uerr
		}

		inst.Status = entity.InstanceStatusTerminated
		inst.CompletedAt = &now
		inst.CurrentNodeID = nil
		if serr := tx.Save(inst).Error; serr != nil {
			return serr
		}

		if derr := s.eng.DispatchTerminated(ctx, tx, inst); derr != nil {
			return derr
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionTerminate,
			FromStatus:   entity.InstanceStatusPending,
			ToStatus:     entity.InstanceStatusTerminated,
			Comment:      reason,
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		go notifier.InstanceCompleted(context.Background(), inst, entity.InstanceStatusTerminated)
	}
	return inst, nil
}

// Remind 催办
// 同一任务一小时内只能催办一次（redis 节流，redis 不可用时不限流）；
// 节流窗口在任务校验通过后才占用，校验失败的催办不消耗窗口
func (s *ActionService) Remind(ctx context.Context, taskID, userID string) (*entity.ApprovalTask, error) {
	operatorName := s.userName(ctx, userID)

	var task *entity.ApprovalTask
	var inst *entity.ApprovalInstance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t entity.ApprovalTask
		if terr := tx.Where("id = ?", taskID).First(&t).Error; terr != nil {
			if errors.Is(terr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("审批任务不存在: %w", engine.ErrNotFound)
			}
			return terr
		}
		if t.Status != entity.TaskStatusPending {
			return fmt.Errorf("只能催办待处理任务: %w", engine.ErrStateConflict)
		}
		task = &t

		var ierr error
		inst, ierr = s.loadInstance(tx, task.InstanceID)
		if ierr != nil {
			return ierr
		}

		if s.rdb != nil {
			key := "approval:remind:" + taskID
			ok, rerr := s.rdb.SetNX(ctx, key, userID, remindThrottle).Result()
			if rerr == nil && !ok {
				return fmt.Errorf("催办过于频繁，请稍后再试: %w", engine.ErrInvalid)
			}
		}

		count := 1
		if task.RemindCount != nil {
			count = *task.RemindCount + 1
		}
		now := time.Now()
		task.RemindCount = &count
		task.RemindedAt = &now
		if serr := tx.Save(task).Error; serr != nil {
			return serr
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			TaskID:       &task.ID,
			NodeID:       &task.NodeID,
			OperatorID:   userID,
			OperatorName: operatorName,
			Action:       entity.ActionRemind,
			Detail:       entity.JSONB{"remind_count": count},
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		go notifier.TaskReminded(context.Background(), inst, task)
	}
	return task, nil
}

// CommentRequest 添加评论请求
type CommentRequest struct {
	Content     string       `json:"content" binding:"required"`
	ParentID    *string      `json:"parent_id"`
	Mentions    []string     `json:"mentions"`
	Attachments entity.JSONB `json:"attachments"`
}

// AddComment 添加评论
// 评论不改变实例和任务状态；@到的用户在实例存在时收到提醒
func (s *ActionService) AddComment(ctx context.Context, instanceID, userID string, req *CommentRequest) (*entity.ApprovalComment, error) {
	// 作者显示名解析失败时留空
	userName := s.userName(ctx, userID)

	var comment *entity.ApprovalComment
	var inst *entity.ApprovalInstance

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, _ = s.loadInstance(tx, instanceID)

		comment = &entity.ApprovalComment{
			ID:          uuid.New().String(),
			InstanceID:  instanceID,
			ParentID:    req.ParentID,
			UserID:      userID,
			UserName:    userName,
			Content:     req.Content,
			Mentions:    req.Mentions,
			Attachments: req.Attachments,
		}
		if cerr := tx.Create(comment).Error; cerr != nil {
			return fmt.Errorf("创建评论失败: %w", cerr)
		}

		return s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   instanceID,
			OperatorID:   userID,
			OperatorName: userName,
			Action:       entity.ActionComment,
			Comment:      req.Content,
		})
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil && inst != nil {
		for _, mentioned := range req.Mentions {
			uid := mentioned
			go notifier.Mentioned(context.Background(), inst, comment, uid)
		}
	}
	return comment, nil
}
