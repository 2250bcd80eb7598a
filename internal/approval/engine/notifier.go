package engine

import (
	"context"
	"errors"
	"log"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/shared/feishu"
	"gorm.io/gorm"
)

// Notifier 审批通知器
// 所有方法都是尽力而为：调用方以 goroutine 方式触发，失败只记日志不影响审批事务
type Notifier interface {
	// TaskCreated 新待办通知审批人
	TaskCreated(ctx context.Context, inst *entity.ApprovalInstance, task *entity.ApprovalTask)
	// InstanceCompleted 终态结果通知发起人
	InstanceCompleted(ctx context.Context, inst *entity.ApprovalInstance, status string)
	// InstanceClosed 实例撤回/终止时通知指定用户（此前被分配待办的审批人）
	InstanceClosed(ctx context.Context, inst *entity.ApprovalInstance, status string, userID string)
	// CarbonCopied 抄送通知
	CarbonCopied(ctx context.Context, inst *entity.ApprovalInstance, userID string)
	// TaskReminded 催办通知审批人
	TaskReminded(ctx context.Context, inst *entity.ApprovalInstance, task *entity.ApprovalTask)
	// Mentioned 评论@提醒
	Mentioned(ctx context.Context, inst *entity.ApprovalInstance, comment *entity.ApprovalComment, userID string)
}

// FeishuNotifier 飞书卡片通知实现
type FeishuNotifier struct {
	client *feishu.Client
	db     *gorm.DB
}

// NewFeishuNotifier 创建飞书通知器
func NewFeishuNotifier(client *feishu.Client, db *gorm.DB) *FeishuNotifier {
	return &FeishuNotifier{client: client, db: db}
}

// openID 查用户的飞书 open_id，查不到返回空串
func (n *FeishuNotifier) openID(ctx context.Context, userID string) string {
	var user entity.User
	err := n.db.WithContext(ctx).
		Select("feishu_open_id").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[FeishuNotifier] 查询用户飞书ID失败 user=%s: %v", userID, err)
		}
		return ""
	}
	return user.FeishuOpenID
}

// userName 查用户显示名
func (n *FeishuNotifier) userName(ctx context.Context, userID string) string {
	var user entity.User
	err := n.db.WithContext(ctx).
		Select("name").
		Where("id = ?", userID).
		First(&user).Error
	if err != nil {
		return userID
	}
	return user.Name
}

// TaskCreated 新待办通知
func (n *FeishuNotifier) TaskCreated(ctx context.Context, inst *entity.ApprovalInstance, task *entity.ApprovalTask) {
	openID := n.openID(ctx, task.AssigneeID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalTaskCard(inst.Title, inst.InstanceNo, n.userName(ctx, inst.InitiatorID), inst.Urgency)
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送待办卡片失败 task=%s: %v", task.ID, err)
	}
}

// InstanceCompleted 终态结果通知发起人
func (n *FeishuNotifier) InstanceCompleted(ctx context.Context, inst *entity.ApprovalInstance, status string) {
	openID := n.openID(ctx, inst.InitiatorID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalResultCard(inst.Title, inst.InstanceNo, status)
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送结果卡片失败 instance=%s: %v", inst.ID, err)
	}
}

// InstanceClosed 实例关闭通知
func (n *FeishuNotifier) InstanceClosed(ctx context.Context, inst *entity.ApprovalInstance, status string, userID string) {
	openID := n.openID(ctx, userID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalResultCard(inst.Title, inst.InstanceNo, status)
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送关闭通知失败 instance=%s user=%s: %v", inst.ID, userID, err)
	}
}

// CarbonCopied 抄送通知
func (n *FeishuNotifier) CarbonCopied(ctx context.Context, inst *entity.ApprovalInstance, userID string) {
	openID := n.openID(ctx, userID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalCCCard(inst.Title, inst.InstanceNo, n.userName(ctx, inst.InitiatorID))
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送抄送卡片失败 instance=%s user=%s: %v", inst.ID, userID, err)
	}
}

// TaskReminded 催办通知
func (n *FeishuNotifier) TaskReminded(ctx context.Context, inst *entity.ApprovalInstance, task *entity.ApprovalTask) {
	openID := n.openID(ctx, task.AssigneeID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalRemindCard(inst.Title, inst.InstanceNo, n.userName(ctx, inst.InitiatorID))
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送催办卡片失败 task=%s: %v", task.ID, err)
	}
}

// Mentioned 评论@提醒
func (n *FeishuNotifier) Mentioned(ctx context.Context, inst *entity.ApprovalInstance, comment *entity.ApprovalComment, userID string) {
	openID := n.openID(ctx, userID)
	if openID == "" {
		return
	}
	card := feishu.NewApprovalMentionCard(inst.Title, inst.InstanceNo, comment.UserName, comment.Content)
	if err := n.client.SendUserCard(ctx, openID, card); err != nil {
		log.Printf("[FeishuNotifier] 发送@提醒卡片失败 comment=%s user=%s: %v", comment.ID, userID, err)
	}
}
