package engine

import (
	"context"
	"sync"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// EntityAdapter 业务单据适配器 —— 审批结果回写业务侧的挂载点
// 只要求声明自己负责的业务类型，具体回调按需实现对应的窄接口
type EntityAdapter interface {
	EntityType() string
}

// ApprovedHook 终审通过回调，在审批事务内执行，返回错误会回滚整个审批
type ApprovedHook interface {
	OnApproved(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error
}

// RejectedHook 终审拒绝回调
type RejectedHook interface {
	OnRejected(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error
}

// WithdrawnHook 发起人撤回回调
type WithdrawnHook interface {
	OnWithdrawn(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error
}

// TerminatedHook 强制终止回调
type TerminatedHook interface {
	OnTerminated(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error
}

// AdapterRegistry 按业务类型注册的适配器表
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]EntityAdapter
}

// NewAdapterRegistry 创建适配器注册表
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]EntityAdapter)}
}

// Register 注册适配器，同类型后注册的覆盖先注册的
func (r *AdapterRegistry) Register(adapter EntityAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.EntityType()] = adapter
}

// Get 获取业务类型的适配器，未注册返回 nil
func (r *AdapterRegistry) Get(entityType string) EntityAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[entityType]
}

// DispatchApproved 分发终审通过回调；类型未注册或适配器未实现该回调时静默跳过
func (e *Engine) DispatchApproved(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	adapter := e.adapters.Get(inst.EntityType)
	if adapter == nil {
		return nil
	}
	if hook, ok := adapter.(ApprovedHook); ok {
		return hook.OnApproved(ctx, tx, inst)
	}
	return nil
}

// DispatchRejected 分发终审拒绝回调
func (e *Engine) DispatchRejected(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	adapter := e.adapters.Get(inst.EntityType)
	if adapter == nil {
		return nil
	}
	if hook, ok := adapter.(RejectedHook); ok {
		return hook.OnRejected(ctx, tx, inst)
	}
	return nil
}

// DispatchWithdrawn 分发撤回回调
func (e *Engine) DispatchWithdrawn(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	adapter := e.adapters.Get(inst.EntityType)
	if adapter == nil {
		return nil
	}
	if hook, ok := adapter.(WithdrawnHook); ok {
		return hook.OnWithdrawn(ctx, tx, inst)
	}
	return nil
}

// DispatchTerminated 分发终止回调
func (e *Engine) DispatchTerminated(ctx context.Context, tx *gorm.DB, inst *entity.ApprovalInstance) error {
	adapter := e.adapters.Get(inst.EntityType)
	if adapter == nil {
		return nil
	}
	if hook, ok := adapter.(TerminatedHook); ok {
		return hook.OnTerminated(ctx, tx, inst)
	}
	return nil
}
