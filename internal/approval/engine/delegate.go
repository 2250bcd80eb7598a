package engine

import (
	"context"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// DelegateResolver 审批委托解析器
type DelegateResolver interface {
	// Resolve 返回实际应接收待办的用户ID，没有生效委托时原样返回
	Resolve(ctx context.Context, tx *gorm.DB, templateID, userID string, at time.Time) (string, error)
}

// DefaultDelegateResolver 基于委托表的默认实现
// 模板专属委托优先于全模板委托；代理人自身再被委托时不做链式解析
type DefaultDelegateResolver struct{}

// NewDefaultDelegateResolver 创建默认委托解析器
func NewDefaultDelegateResolver() *DefaultDelegateResolver {
	return &DefaultDelegateResolver{}
}

// Resolve 解析委托
func (d *DefaultDelegateResolver) Resolve(ctx context.Context, tx *gorm.DB, templateID, userID string, at time.Time) (string, error) {
	var delegates []entity.ApprovalDelegate
	err := tx.
		Where("owner_id = ? AND status = ? AND start_at <= ? AND end_at > ?",
			userID, entity.DelegateStatusActive, at, at).
		Where("template_id IS NULL OR template_id = ?", templateID).
		Find(&delegates).Error
	if err != nil {
		return "", err
	}
	if len(delegates) == 0 {
		return userID, nil
	}
	// 模板专属优先
	for _, dg := range delegates {
		if dg.TemplateID != nil && *dg.TemplateID == templateID {
			return dg.DelegateID, nil
		}
	}
	return delegates[0].DelegateID, nil
}
