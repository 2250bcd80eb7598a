package repository

import (
	"context"
	"errors"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
)

// TemplateRepository 审批模板仓库
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建审批模板仓库
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// FindByID 根据ID查找模板
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalTemplate, error) {
	var tpl entity.ApprovalTemplate
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

// FindByCode 根据编码查找模板
func (r *TemplateRepository) FindByCode(ctx context.Context, code string) (*entity.ApprovalTemplate, error) {
	var tpl entity.ApprovalTemplate
	err := r.db.WithContext(ctx).
		Where("code = ?", code).
		First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

// Create 创建模板
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.ApprovalTemplate) error {
	return r.db.WithContext(ctx).Create(tpl).Error
}

// CreateFlow 创建流程
func (r *TemplateRepository) CreateFlow(ctx context.Context, flow *entity.ApprovalFlow) error {
	return r.db.WithContext(ctx).Create(flow).Error
}

// CreateNode 创建节点定义
func (r *TemplateRepository) CreateNode(ctx context.Context, node *entity.ApprovalNodeDefinition) error {
	return r.db.WithContext(ctx).Create(node).Error
}

// ListActiveFlows 获取模板下启用的流程（版本倒序）
func (r *TemplateRepository) ListActiveFlows(ctx context.Context, templateID string) ([]entity.ApprovalFlow, error) {
	var flows []entity.ApprovalFlow
	err := r.db.WithContext(ctx).
		Where("template_id = ? AND status = ?", templateID, entity.FlowStatusActive).
		Order("version DESC, created_at DESC").
		Find(&flows).Error
	return flows, err
}

// FindFlow 根据ID查找流程
func (r *TemplateRepository) FindFlow(ctx context.Context, flowID string) (*entity.ApprovalFlow, error) {
	var flow entity.ApprovalFlow
	err := r.db.WithContext(ctx).
		Where("id = ?", flowID).
		First(&flow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &flow, nil
}

// ListNodes 获取流程的节点定义（按节点序号升序）
func (r *TemplateRepository) ListNodes(ctx context.Context, flowID string) ([]entity.ApprovalNodeDefinition, error) {
	var nodes []entity.ApprovalNodeDefinition
	err := r.db.WithContext(ctx).
		Where("flow_id = ?", flowID).
		Order("node_order ASC").
		Find(&nodes).Error
	return nodes, err
}

// FindNode 根据ID查找节点定义
func (r *TemplateRepository) FindNode(ctx context.Context, nodeID string) (*entity.ApprovalNodeDefinition, error) {
	var node entity.ApprovalNodeDefinition
	err := r.db.WithContext(ctx).
		Where("id = ?", nodeID).
		First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &node, nil
}
