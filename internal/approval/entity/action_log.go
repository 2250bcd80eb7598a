package entity

import (
	"time"
)

// 动作类型常量 —— 写入审批动作日志的 action 字段
const (
	ActionSubmit            = "SUBMIT"
	ActionApprove           = "APPROVE"
	ActionReject            = "REJECT"
	ActionReturn            = "RETURN"
	ActionTransfer          = "TRANSFER"
	ActionAddApproverBefore = "ADD_APPROVER_BEFORE"
	ActionAddApproverAfter  = "ADD_APPROVER_AFTER"
	ActionAddCC             = "ADD_CC"
	ActionWithdraw          = "WITHDRAW"
	ActionTerminate         = "TERMINATE"
	ActionRemind            = "REMIND"
	ActionComment           = "COMMENT"
)

// ApprovalActionLog 审批动作日志 —— 只增不改的操作流水
// 与业务变更同事务写入，日志写入失败则整个变更回滚
type ApprovalActionLog struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	InstanceID   string    `json:"instance_id" gorm:"size:36;not null;index"`
	TaskID       *string   `json:"task_id" gorm:"size:36;index"`
	NodeID       *string   `json:"node_id" gorm:"size:36"`
	OperatorID   string    `json:"operator_id" gorm:"size:32;not null"`
	OperatorName string    `json:"operator_name" gorm:"size:64"`
	Action       string    `json:"action" gorm:"size:30;not null;index"`
	FromStatus   string    `json:"from_status" gorm:"size:20"`
	ToStatus     string    `json:"to_status" gorm:"size:20"`
	Comment      string    `json:"comment" gorm:"type:text"`
	Detail       JSONB     `json:"detail" gorm:"type:jsonb"`
	ActionAt     time.Time `json:"action_at" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at"`

	// 关联
	Operator *User `json:"operator,omitempty" gorm:"foreignKey:OperatorID"`
}

func (ApprovalActionLog) TableName() string {
	return "approval_action_logs"
}
