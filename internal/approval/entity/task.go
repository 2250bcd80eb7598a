package entity

import (
	"time"
)

// 任务状态常量
// PENDING → {COMPLETED, CANCELLED, SKIPPED, TRANSFERRED}
const (
	TaskStatusPending     = "PENDING"
	TaskStatusCompleted   = "COMPLETED"
	TaskStatusCancelled   = "CANCELLED"
	TaskStatusSkipped     = "SKIPPED"
	TaskStatusTransferred = "TRANSFERRED"
)

// 任务来源类型
const (
	AssigneeTypeNormal      = "NORMAL"       // 正常节点分配
	AssigneeTypeTransferred = "TRANSFERRED"  // 转办产生
	AssigneeTypeAddedBefore = "ADDED_BEFORE" // 前加签产生
	AssigneeTypeAddedAfter  = "ADDED_AFTER"  // 后加签产生
)

// 任务决策动作
const (
	TaskActionApprove = "APPROVE"
	TaskActionReject  = "REJECT"
	TaskActionReturn  = "RETURN"
)

// 驳回去向（reject_to），除两个保留值外的取值按节点ID字面量解析
const (
	RejectToStart = "START"
	RejectToPrev  = "PREV"
)

// 加签位置
const (
	AddPositionBefore = "BEFORE"
	AddPositionAfter  = "AFTER"
)

// ApprovalTask 审批任务 —— 某个审批人在某个节点上的一件待办
// 正常流转下 (instance, node, assignee) 同时最多一条 PENDING；
// 会签节点允许同节点多条 PENDING（不同审批人）
type ApprovalTask struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	InstanceID         string     `json:"instance_id" gorm:"size:36;not null;index"`
	NodeID             string     `json:"node_id" gorm:"size:36;not null;index"`
	NodeOrder          int        `json:"node_order" gorm:"not null;default:0"`
	AssigneeID         string     `json:"assignee_id" gorm:"size:32;not null;index"`
	AssigneeType       string     `json:"assignee_type" gorm:"size:20;not null;default:NORMAL"`
	OriginalAssigneeID *string    `json:"original_assignee_id" gorm:"size:32"`
	Status             string     `json:"status" gorm:"size:20;not null;default:PENDING;index"`
	Action             *string    `json:"action" gorm:"size:20"`
	Comment            string     `json:"comment" gorm:"type:text"`
	Attachments        JSONB      `json:"attachments" gorm:"type:jsonb"`
	Countersign        bool       `json:"countersign" gorm:"not null;default:false"`
	ReturnToNodeID     *string    `json:"return_to_node_id" gorm:"size:36"`
	RemindCount        *int       `json:"remind_count"`
	RemindedAt         *time.Time `json:"reminded_at"`
	DueAt              *time.Time `json:"due_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// 关联
	Instance *ApprovalInstance       `json:"instance,omitempty" gorm:"foreignKey:InstanceID"`
	Node     *ApprovalNodeDefinition `json:"node,omitempty" gorm:"foreignKey:NodeID"`
	Assignee *User                   `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
}

func (ApprovalTask) TableName() string {
	return "approval_tasks"
}
