package entity

import (
	"time"
)

// 模板/流程状态常量
const (
	TemplateStatusActive   = "active"
	TemplateStatusDisabled = "disabled"

	FlowStatusActive   = "active"
	FlowStatusDisabled = "disabled"

	NodeStatusActive   = "active"
	NodeStatusDisabled = "disabled"
)

// 节点类型常量 —— 只有 APPROVAL 节点参与任务创建，其他类型在推进时直接跳过
const (
	NodeTypeApproval = "APPROVAL"
	NodeTypeCC       = "CC"
)

// 审批人解析类型（approver_config.type）
const (
	ApproverTypeDesignated = "designated"  // 指定人员
	ApproverTypeInitiator  = "initiator"   // 发起人本人
	ApproverTypeDeptLeader = "dept_leader" // 发起人部门负责人
	ApproverTypeRole       = "role"        // 按角色编码
)

// ApprovalTemplate 审批模板 —— 一类业务审批的可复用定义（报价审批、合同审批、ECN审批等）
// 一旦被实例引用即视为逻辑不可变
type ApprovalTemplate struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Code        string    `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"size:200;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Status      string    `json:"status" gorm:"size:20;not null;default:active"`
	CreatedBy   string    `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Flows []ApprovalFlow `json:"flows,omitempty" gorm:"foreignKey:TemplateID"`
}

func (ApprovalTemplate) TableName() string {
	return "approval_templates"
}

// ApprovalFlow 审批流程 —— 模板下的一个具体节点图版本，提交时由路由按上下文选中
// Condition 形如 {"min_amount": 10000, "max_amount": 100000}，与表单 amount 字段比较
type ApprovalFlow struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	TemplateID string    `json:"template_id" gorm:"size:36;not null;index"`
	Name       string    `json:"name" gorm:"size:200;not null"`
	Version    int       `json:"version" gorm:"not null;default:1"`
	Condition  JSONB     `json:"condition" gorm:"type:jsonb"`
	IsDefault  bool      `json:"is_default" gorm:"not null;default:false"`
	Status     string    `json:"status" gorm:"size:20;not null;default:active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联
	Nodes []ApprovalNodeDefinition `json:"nodes,omitempty" gorm:"foreignKey:FlowID"`
}

func (ApprovalFlow) TableName() string {
	return "approval_flows"
}

// ApprovalNodeDefinition 审批节点定义 —— 流程中的一个环节
// NodeOrder 在同一流程内唯一；Countersign=true 表示会签（所有人通过才算过），
// false 且解析出多个审批人时表示或签（任一人通过即过，其余待办作废）
type ApprovalNodeDefinition struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	FlowID         string    `json:"flow_id" gorm:"size:36;not null;index:idx_approval_nodes_flow_order,unique"`
	Name           string    `json:"name" gorm:"size:100;not null"`
	NodeOrder      int       `json:"node_order" gorm:"not null;index:idx_approval_nodes_flow_order,unique"`
	NodeType       string    `json:"node_type" gorm:"size:20;not null;default:APPROVAL"`
	ApproverConfig JSONB     `json:"approver_config" gorm:"type:jsonb"`
	Countersign    bool      `json:"countersign" gorm:"not null;default:false"`
	CanTransfer    bool      `json:"can_transfer" gorm:"not null;default:true"`
	CanAddApprover bool      `json:"can_add_approver" gorm:"not null;default:true"`
	NotifyConfig   JSONB     `json:"notify_config" gorm:"type:jsonb"`
	Status         string    `json:"status" gorm:"size:20;not null;default:active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ApprovalNodeDefinition) TableName() string {
	return "approval_node_definitions"
}
