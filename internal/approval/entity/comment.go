package entity

import (
	"time"
)

// ApprovalComment 审批评论 —— 不改变实例/任务状态的补充讨论
// ParentID 非空时为楼中楼回复；Mentions 中的用户会收到通知
type ApprovalComment struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	InstanceID  string     `json:"instance_id" gorm:"size:36;not null;index"`
	ParentID    *string    `json:"parent_id" gorm:"size:36"`
	UserID      string     `json:"user_id" gorm:"size:32;not null"`
	UserName    string     `json:"user_name" gorm:"size:64"`
	Content     string     `json:"content" gorm:"type:text;not null"`
	Mentions    StringList `json:"mentions" gorm:"type:jsonb"`
	Attachments JSONB      `json:"attachments" gorm:"type:jsonb"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 关联
	User    *User             `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Replies []ApprovalComment `json:"replies,omitempty" gorm:"foreignKey:ParentID"`
}

func (ApprovalComment) TableName() string {
	return "approval_comments"
}
