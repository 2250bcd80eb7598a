package entity

import (
	"time"
)

// 委托状态常量
const (
	DelegateStatusActive   = "active"
	DelegateStatusDisabled = "disabled"
)

// ApprovalDelegate 审批委托 —— 一段时间内把某人的待办改派给代理人
// TemplateID 为空表示对所有模板生效；生效判断为 status=active 且当前时间落在 [StartAt, EndAt)
type ApprovalDelegate struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	OwnerID    string    `json:"owner_id" gorm:"size:32;not null;index"`
	DelegateID string    `json:"delegate_id" gorm:"size:32;not null"`
	TemplateID *string   `json:"template_id" gorm:"size:36"`
	Reason     string    `json:"reason" gorm:"size:200"`
	StartAt    time.Time `json:"start_at" gorm:"not null"`
	EndAt      time.Time `json:"end_at" gorm:"not null"`
	Status     string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// 关联
	Owner    *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Delegate *User `json:"delegate,omitempty" gorm:"foreignKey:DelegateID"`
}

func (ApprovalDelegate) TableName() string {
	return "approval_delegates"
}
