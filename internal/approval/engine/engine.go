package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 错误定义 —— 校验门槛按 不存在 > 无权限 > 状态冲突 的顺序返回
var (
	ErrNotFound      = errors.New("approval record not found")
	ErrForbidden     = errors.New("operation not allowed for user")
	ErrStateConflict = errors.New("approval state conflict")
	ErrInvalid       = errors.New("invalid approval request")
	ErrNodePolicy    = errors.New("operation disabled by node policy")
)

// Engine 审批引擎核心
// 所有变更方法都在调用方的事务句柄上执行，由调用方决定提交或回滚
type Engine struct {
	db        *gorm.DB
	router    Router
	executor  TaskExecutor
	delegates DelegateResolver
	notifier  Notifier
	adapters  *AdapterRegistry
}

// New 创建审批引擎
func New(db *gorm.DB, router Router, executor TaskExecutor, delegates DelegateResolver, notifier Notifier, adapters *AdapterRegistry) *Engine {
	if adapters == nil {
		adapters = NewAdapterRegistry()
	}
	return &Engine{
		db:        db,
		router:    router,
		executor:  executor,
		delegates: delegates,
		notifier:  notifier,
		adapters:  adapters,
	}
}

// DB 返回底层数据库句柄
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Router 返回流程路由器
func (e *Engine) Router() Router {
	return e.router
}

// Executor 返回任务执行器
func (e *Engine) Executor() TaskExecutor {
	return e.executor
}

// Adapters 返回业务适配器注册表
func (e *Engine) Adapters() *AdapterRegistry {
	return e.adapters
}

// Notifier 返回通知器（可能为 nil）
func (e *Engine) Notifier() Notifier {
	return e.notifier
}

// FirstNode 流程的第一个启用审批节点（node_order 最小）
func (e *Engine) FirstNode(tx *gorm.DB, flowID string) (*entity.ApprovalNodeDefinition, error) {
	var node entity.ApprovalNodeDefinition
	err := tx.
		Where("flow_id = ? AND node_type = ? AND status = ?",
			flowID, entity.NodeTypeApproval, entity.NodeStatusActive).
		Order("node_order ASC").
		First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// PrevNode 给定节点之前最近的启用审批节点（node_order 严格小于且最大）
func (e *Engine) PrevNode(tx *gorm.DB, node *entity.ApprovalNodeDefinition) (*entity.ApprovalNodeDefinition, error) {
	var prev entity.ApprovalNodeDefinition
	err := tx.
		Where("flow_id = ? AND node_type = ? AND status = ? AND node_order < ?",
			node.FlowID, entity.NodeTypeApproval, entity.NodeStatusActive, node.NodeOrder).
		Order("node_order DESC").
		First(&prev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prev, nil
}

// FindNode 根据ID查找节点定义
func (e *Engine) FindNode(tx *gorm.DB, nodeID string) (*entity.ApprovalNodeDefinition, error) {
	var node entity.ApprovalNodeDefinition
	err := tx.Where("id = ?", nodeID).First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}

// FanOutNode 在指定节点上展开审批任务
// 解析不出任何审批人时视为空节点，直接跳过继续推进；
// 解析出的审批人逐个做委托替换后创建待办，并按节点配置落抄送
func (e *Engine) FanOutNode(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, node *entity.ApprovalNodeDefinition) error {
	fctx, err := e.BuildFlowContext(tx, inst)
	if err != nil {
		return fmt.Errorf("构建流程上下文失败: %w", err)
	}

	approvers, err := e.router.ResolveApprovers(ctx, tx, node, fctx)
	if err != nil {
		return fmt.Errorf("解析审批人失败: %w", err)
	}

	if len(approvers) == 0 {
		// 空节点：更新指针后直接向后推进
		inst.CurrentNodeID = &node.ID
		if err := tx.Save(inst).Error; err != nil {
			return err
		}
		return e.AdvanceFrom(ctx, tx, inst, nil)
	}

	if e.delegates != nil {
		substituted := make([]string, 0, len(approvers))
		seen := make(map[string]bool, len(approvers))
		for _, userID := range approvers {
			actual, derr := e.delegates.Resolve(ctx, tx, inst.TemplateID, userID, time.Now())
			if derr != nil {
				return fmt.Errorf("解析审批委托失败: %w", derr)
			}
			if !seen[actual] {
				seen[actual] = true
				substituted = append(substituted, actual)
			}
		}
		approvers = substituted
	}

	tasks, err := e.executor.CreateTasksForNode(ctx, tx, inst, node, approvers)
	if err != nil {
		return fmt.Errorf("创建审批任务失败: %w", err)
	}

	if err := e.createFlowCarbonCopies(ctx, tx, inst, node); err != nil {
		return err
	}

	if e.notifier != nil {
		for i := range tasks {
			task := tasks[i]
			go e.notifier.TaskCreated(context.Background(), inst, &task)
		}
	}
	return nil
}

// createFlowCarbonCopies 把节点 notify_config.cc_user_ids 落成流程抄送，幂等逻辑走执行器
func (e *Engine) createFlowCarbonCopies(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, node *entity.ApprovalNodeDefinition) error {
	raw, ok := node.NotifyConfig["cc_user_ids"]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	userIDs := make([]string, 0, len(items))
	for _, item := range items {
		if userID, ok := item.(string); ok && userID != "" {
			userIDs = append(userIDs, userID)
		}
	}
	if len(userIDs) == 0 {
		return nil
	}
	if _, err := e.executor.CreateCarbonCopies(ctx, tx, inst, userIDs, entity.CCSourceFlow, ""); err != nil {
		return fmt.Errorf("创建流程抄送失败: %w", err)
	}
	return nil
}

// AdvanceFrom 从已完成的任务（或当前节点指针）向后推进
// 没有后续节点时实例终审通过：置 APPROVED、回调业务适配器、通知发起人
func (e *Engine) AdvanceFrom(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, completed *entity.ApprovalTask) error {
	var current *entity.ApprovalNodeDefinition
	var err error

	if completed != nil {
		current, err = e.FindNode(tx, completed.NodeID)
	} else if inst.CurrentNodeID != nil {
		current, err = e.FindNode(tx, *inst.CurrentNodeID)
	}
	if err != nil {
		return err
	}
	if current == nil {
		// 当前位置不可解析，不推进也不报错
		return nil
	}

	fctx, err := e.BuildFlowContext(tx, inst)
	if err != nil {
		return fmt.Errorf("构建流程上下文失败: %w", err)
	}
	next, err := e.router.NextNode(ctx, tx, current, fctx)
	if err != nil {
		return fmt.Errorf("查找后续节点失败: %w", err)
	}

	if next == nil {
		now := time.Now()
		inst.Status = entity.InstanceStatusApproved
		inst.CompletedAt = &now
		inst.CurrentNodeID = nil
		if err := tx.Save(inst).Error; err != nil {
			return err
		}
		if err := e.DispatchApproved(ctx, tx, inst); err != nil {
			return err
		}
		if e.notifier != nil {
			go e.notifier.InstanceCompleted(context.Background(), inst, entity.InstanceStatusApproved)
		}
		return nil
	}

	inst.CurrentNodeID = &next.ID
	if err := tx.Save(inst).Error; err != nil {
		return err
	}
	return e.FanOutNode(ctx, tx, inst, next)
}

// ReturnToNode 退回到指定节点：作废实例全部待办，指针重置后重新展开
func (e *Engine) ReturnToNode(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance, node *entity.ApprovalNodeDefinition) error {
	err := tx.Model(&entity.ApprovalTask{}).
		Where("instance_id = ? AND status = ?", inst.ID, entity.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     entity.TaskStatusCancelled,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("作废待办任务失败: %w", err)
	}

	inst.CurrentNodeID = &node.ID
	if err := tx.Save(inst).Error; err != nil {
		return err
	}
	return e.FanOutNode(ctx, tx, inst, node)
}

// ValidateTask 任务操作前的统一校验：存在性、归属、待办状态
func (e *Engine) ValidateTask(tx *gorm.DB, taskID, userID string) (*entity.ApprovalTask, error) {
	var task entity.ApprovalTask
	err := tx.Where("id = ?", taskID).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("审批任务不存在: %w", ErrNotFound)
		}
		return nil, err
	}
	if task.AssigneeID != userID {
		return nil, fmt.Errorf("当前用户不是该任务的审批人: %w", ErrForbidden)
	}
	if task.Status != entity.TaskStatusPending {
		return nil, fmt.Errorf("任务已处理，当前状态 %s: %w", task.Status, ErrStateConflict)
	}
	return &task, nil
}

// LogEntry 动作日志条目
type LogEntry struct {
	InstanceID   string
	TaskID       *string
	NodeID       *string
	OperatorID   string
	OperatorName string
	Action       string
	FromStatus   string
	ToStatus     string
	Comment      string
	Detail       entity.JSONB
}

// AppendLog 在当前事务内追加动作日志，写入失败导致整个变更回滚
func (e *Engine) AppendLog(tx *gorm.DB, entry *LogEntry) error {
	log := entity.ApprovalActionLog{
		ID:           uuid.New().String(),
		InstanceID:   entry.InstanceID,
		TaskID:       entry.TaskID,
		NodeID:       entry.NodeID,
		OperatorID:   entry.OperatorID,
		OperatorName: entry.OperatorName,
		Action:       entry.Action,
		FromStatus:   entry.FromStatus,
		ToStatus:     entry.ToStatus,
		Comment:      entry.Comment,
		Detail:       entry.Detail,
		ActionAt:     time.Now(),
	}
	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("写入审批日志失败: %w", err)
	}
	return nil
}

// BuildFlowContext 从实例构建流程上下文（表单快照 + 发起人 + 业务单据引用）
func (e *Engine) BuildFlowContext(tx *gorm.DB, inst *entity.ApprovalInstance) (*FlowContext, error) {
	var initiator entity.User
	err := tx.Where("id = ?", inst.InitiatorID).First(&initiator).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &FlowContext{
		FormData: inst.FormData,
		Initiator: Initiator{
			ID:           inst.InitiatorID,
			Name:         initiator.Name,
			DepartmentID: initiator.DepartmentID,
		},
		Entity: EntityRef{
			Type: inst.EntityType,
			ID:   inst.EntityID,
		},
	}, nil
}
