package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// Initiator 流程上下文中的发起人信息
type Initiator struct {
	ID           string
	Name         string
	DepartmentID string
}

// EntityRef 流程上下文中的业务单据引用
type EntityRef struct {
	Type string
	ID   string
}

// FlowContext 流程路由上下文 —— 选流程和解析审批人时的全部输入
type FlowContext struct {
	FormData  entity.JSONB
	Initiator Initiator
	Entity    EntityRef
}

// Router 流程路由器
type Router interface {
	// SelectFlow 按上下文为模板选择一个流程：条件流程优先，默认流程兜底
	SelectFlow(ctx context.Context, tx *gorm.DB, templateID string, fctx *FlowContext) (*entity.ApprovalFlow, error)
	// ResolveApprovers 解析节点的审批人ID列表（去重保序，可能为空）
	ResolveApprovers(ctx context.Context, tx *gorm.DB, node *entity.ApprovalNodeDefinition, fctx *FlowContext) ([]string, error)
	// NextNode 给定当前节点和流程上下文，返回下一个启用审批节点；流程走完返回 nil
	NextNode(ctx context.Context, tx *gorm.DB, current *entity.ApprovalNodeDefinition, fctx *FlowContext) (*entity.ApprovalNodeDefinition, error)
}

// DefaultRouter 基于流程定义表的默认路由实现
type DefaultRouter struct{}

// NewDefaultRouter 创建默认路由器
func NewDefaultRouter() *DefaultRouter {
	return &DefaultRouter{}
}

// SelectFlow 选择流程
// 条件流程按版本倒序逐个匹配金额区间，没有命中时回落到默认流程
func (r *DefaultRouter) SelectFlow(ctx context.Context, tx *gorm.DB, templateID string, fctx *FlowContext) (*entity.ApprovalFlow, error) {
	var flows []entity.ApprovalFlow
	err := tx.
		Where("template_id = ? AND status = ?", templateID, entity.FlowStatusActive).
		Order("version DESC, created_at DESC").
		Find(&flows).Error
	if err != nil {
		return nil, err
	}

	for i := range flows {
		flow := &flows[i]
		if len(flow.Condition) == 0 {
			continue
		}
		if matchCondition(flow.Condition, fctx.FormData) {
			return flow, nil
		}
	}
	for i := range flows {
		if flows[i].IsDefault {
			return &flows[i], nil
		}
	}
	return nil, fmt.Errorf("模板没有可用的审批流程: %w", ErrInvalid)
}

// matchCondition 金额区间匹配：min_amount <= amount < max_amount（缺省侧不限制）
func matchCondition(cond entity.JSONB, formData entity.JSONB) bool {
	amount, ok := toFloat(formData["amount"])
	if !ok {
		return false
	}
	if min, has := cond["min_amount"]; has {
		v, ok := toFloat(min)
		if !ok || amount < v {
			return false
		}
	}
	if max, has := cond["max_amount"]; has {
		v, ok := toFloat(max)
		if !ok || amount >= v {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// ResolveApprovers 解析审批人
func (r *DefaultRouter) ResolveApprovers(ctx context.Context, tx *gorm.DB, node *entity.ApprovalNodeDefinition, fctx *FlowContext) ([]string, error) {
	cfg := node.ApproverConfig
	approverType, _ := cfg["type"].(string)

	var ids []string
	switch approverType {
	case entity.ApproverTypeDesignated:
		raw, _ := cfg["user_ids"].([]interface{})
		for _, item := range raw {
			if id, ok := item.(string); ok && id != "" {
				ids = append(ids, id)
			}
		}

	case entity.ApproverTypeInitiator:
		if fctx.Initiator.ID != "" {
			ids = append(ids, fctx.Initiator.ID)
		}

	case entity.ApproverTypeDeptLeader:
		if fctx.Initiator.DepartmentID == "" {
			break
		}
		var dept entity.Department
		err := tx.Where("id = ?", fctx.Initiator.DepartmentID).First(&dept).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		if dept.LeaderID != "" {
			ids = append(ids, dept.LeaderID)
		}

	case entity.ApproverTypeRole:
		roleCode, _ := cfg["role_code"].(string)
		if roleCode == "" {
			break
		}
		var users []entity.User
		err := tx.
			Where("id IN (SELECT user_id FROM user_roles WHERE role_id IN (SELECT id FROM roles WHERE code = ?))", roleCode).
			Where("status = ?", "active").
			Order("id ASC").
			Find(&users).Error
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			ids = append(ids, u.ID)
		}
	}

	// 去重保序
	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result, nil
}

// NextNode 查找下一个启用审批节点
// 默认实现按 node_order 无条件推进，不消费上下文；节点间条件分支由替换实现决定
func (r *DefaultRouter) NextNode(ctx context.Context, tx *gorm.DB, current *entity.ApprovalNodeDefinition, fctx *FlowContext) (*entity.ApprovalNodeDefinition, error) {
	var node entity.ApprovalNodeDefinition
	err := tx.
		Where("flow_id = ? AND node_type = ? AND status = ? AND node_order > ?",
			current.FlowID, entity.NodeTypeApproval, entity.NodeStatusActive, current.NodeOrder).
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
