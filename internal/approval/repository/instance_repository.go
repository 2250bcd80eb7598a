package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstanceRepository 审批实例仓库
type InstanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository 创建审批实例仓库
func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// FindByID 根据ID查找实例
func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	err := r.db.WithContext(ctx).
		Preload("Template").
		Preload("Flow").
		Preload("CurrentNode").
		Preload("Initiator").
		Where("id = ?", id).
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}

// FindByInstanceNo 根据编号查找实例
func (r *InstanceRepository) FindByInstanceNo(ctx context.Context, instanceNo string) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	err := r.db.WithContext(ctx).
		Where("instance_no = ?", instanceNo).
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}

// Create 创建实例
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// Update 更新实例
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.ApprovalInstance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

// NextInstanceNo 生成下一个实例编号（AP + 年月日 + 当日4位流水）
// 必须在事务内调用。先按日期前缀拿事务级咨询锁把同日取号串行化——只锁最大编号行时，
// 两个并发事务会读到同一个旧最大值（对方新插入的行不在本事务快照里）；
// 拿到锁之后的查询能看到已提交的最大编号，FOR UPDATE 再锁住该行到提交
func (r *InstanceRepository) NextInstanceNo(tx *gorm.DB, now time.Time) (string, error) {
	prefix := "AP" + now.Format("060102")

	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
		return "", fmt.Errorf("获取取号锁失败: %w", err)
	}

	var last entity.ApprovalInstance
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("instance_no LIKE ?", prefix+"%").
		Order("instance_no DESC").
		Limit(1).
		First(&last).Error

	seq := 1
	if err == nil {
		suffix := strings.TrimPrefix(last.InstanceNo, prefix)
		if n, perr := strconv.Atoi(suffix); perr == nil {
			seq = n + 1
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// List 获取实例列表（分页）
func (r *InstanceRepository) List(ctx context.Context, page, pageSize int, filters map[string]interface{}) ([]entity.ApprovalInstance, int64, error) {
	var instances []entity.ApprovalInstance
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ApprovalInstance{})

	if status, ok := filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if templateID, ok := filters["template_id"].(string); ok && templateID != "" {
		query = query.Where("template_id = ?", templateID)
	}
	if initiatorID, ok := filters["initiator_id"].(string); ok && initiatorID != "" {
		query = query.Where("initiator_id = ?", initiatorID)
	}
	if entityType, ok := filters["entity_type"].(string); ok && entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if keyword, ok := filters["keyword"].(string); ok && keyword != "" {
		query = query.Where("title ILIKE ? OR instance_no ILIKE ?", "%"+keyword+"%", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Template").
		Preload("Initiator").
		Preload("CurrentNode").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&instances).Error

	return instances, total, err
}

// ListByEntity 获取某个业务单据的全部审批实例
func (r *InstanceRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]entity.ApprovalInstance, error) {
	var instances []entity.ApprovalInstance
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Find(&instances).Error
	return instances, err
}
