package entity

import (
	"time"
)

// 抄送来源常量
const (
	CCSourceInitiator = "INITIATOR" // 发起人提交时指定
	CCSourceApprover  = "APPROVER"  // 审批人审批时追加
	CCSourceFlow      = "FLOW"      // 流程 CC 节点产生
)

// ApprovalCarbonCopy 审批抄送记录
// (instance, user) 幂等：重复抄送同一人不产生新记录
type ApprovalCarbonCopy struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	InstanceID string     `json:"instance_id" gorm:"size:36;not null;index:idx_approval_cc_instance_user,unique"`
	UserID     string     `json:"user_id" gorm:"size:32;not null;index:idx_approval_cc_instance_user,unique;index"`
	Source     string     `json:"source" gorm:"size:20;not null;default:INITIATOR"`
	CreatedBy  string     `json:"created_by" gorm:"size:32"`
	IsRead     bool       `json:"is_read" gorm:"not null;default:false"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`

	// 关联
	Instance *ApprovalInstance `json:"instance,omitempty" gorm:"foreignKey:InstanceID"`
	User     *User             `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ApprovalCarbonCopy) TableName() string {
	return "approval_carbon_copies"
}
