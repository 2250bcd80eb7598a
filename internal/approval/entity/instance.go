package entity

import (
	"time"
)

// 实例状态常量
// DRAFT → PENDING → {APPROVED, REJECTED, CANCELLED, TERMINATED}，右侧四态均为终态
const (
	InstanceStatusDraft      = "DRAFT"
	InstanceStatusPending    = "PENDING"
	InstanceStatusApproved   = "APPROVED"
	InstanceStatusRejected   = "REJECTED"
	InstanceStatusCancelled  = "CANCELLED"
	InstanceStatusTerminated = "TERMINATED"
)

// 紧急程度常量
const (
	UrgencyNormal   = "NORMAL"
	UrgencyUrgent   = "URGENT"
	UrgencyCritical = "CRITICAL"
)

// IsTerminalStatus 是否终态
func IsTerminalStatus(status string) bool {
	switch status {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled, InstanceStatusTerminated:
		return true
	}
	return false
}

// ApprovalInstance 审批实例 —— 一条业务单据的一次完整审批过程
// InstanceNo 形如 AP2603150001（AP + 年月日 + 当日4位流水）
// FormData 为提交时的表单快照，落库后不再变更
type ApprovalInstance struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	InstanceNo    string     `json:"instance_no" gorm:"size:20;uniqueIndex;not null"`
	TemplateID    string     `json:"template_id" gorm:"size:36;not null;index"`
	FlowID        string     `json:"flow_id" gorm:"size:36;index"`
	EntityType    string     `json:"entity_type" gorm:"size:50;not null;index:idx_approval_instances_entity"`
	EntityID      string     `json:"entity_id" gorm:"size:36;not null;index:idx_approval_instances_entity"`
	Title         string     `json:"title" gorm:"size:200;not null"`
	Summary       string     `json:"summary" gorm:"type:text"`
	FormData      JSONB      `json:"form_data" gorm:"type:jsonb"`
	InitiatorID   string     `json:"initiator_id" gorm:"size:32;not null;index"`
	CurrentNodeID *string    `json:"current_node_id" gorm:"size:36"`
	Status        string     `json:"status" gorm:"size:20;not null;default:DRAFT;index"`
	Urgency       string     `json:"urgency" gorm:"size:20;not null;default:NORMAL"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// 关联
	Template    *ApprovalTemplate       `json:"template,omitempty" gorm:"foreignKey:TemplateID"`
	Flow        *ApprovalFlow           `json:"flow,omitempty" gorm:"foreignKey:FlowID"`
	CurrentNode *ApprovalNodeDefinition `json:"current_node,omitempty" gorm:"foreignKey:CurrentNodeID"`
	Initiator   *User                   `json:"initiator,omitempty" gorm:"foreignKey:InitiatorID"`
	Tasks       []ApprovalTask          `json:"tasks,omitempty" gorm:"foreignKey:InstanceID"`
}

func (ApprovalInstance) TableName() string {
	return "approval_instances"
}
