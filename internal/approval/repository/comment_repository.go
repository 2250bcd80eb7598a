package repository

import (
	"context"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// CommentRepository 审批评论仓库
type CommentRepository struct {
	db *gorm.DB
}

// NewCommentRepository 创建审批评论仓库
func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create 创建评论
func (r *CommentRepository) Create(ctx context.Context, comment *entity.ApprovalComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// ListByInstance 获取实例的评论（顶层按时间升序，带回复）
func (r *CommentRepository) ListByInstance(ctx context.Context, instanceID string) ([]entity.ApprovalComment, error) {
	var comments []entity.ApprovalComment
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND parent_id IS NULL", instanceID).
		Preload("User").
		Preload("Replies").
		Preload("Replies.User").
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}
