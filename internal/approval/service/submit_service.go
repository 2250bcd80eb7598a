package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmitService 审批提交服务
type SubmitService struct {
	db    *gorm.DB
	repos *repository.Repositories
	eng   *engine.Engine
}

// NewSubmitService 创建审批提交服务
func NewSubmitService(db *gorm.DB, repos *repository.Repositories, eng *engine.Engine) *SubmitService {
	return &SubmitService{db: db, repos: repos, eng: eng}
}

// SubmitRequest 提交审批请求
type SubmitRequest struct {
	TemplateCode string       `json:"template_code" binding:"required"`
	EntityType   string       `json:"entity_type" binding:"required"`
	EntityID     string       `json:"entity_id" binding:"required"`
	Title        string       `json:"title"`
	Summary      string       `json:"summary"`
	FormData     entity.JSONB `json:"form_data"`
	Urgency      string       `json:"urgency"`
	CCUserIDs    []string     `json:"cc_user_ids"`
}

// Submit 提交审批
// 选流程、编号、建实例、落日志、展开首节点、落发起人抄送，全部在一个事务内完成
func (s *SubmitService) Submit(ctx context.Context, req *SubmitRequest, initiatorID string) (*entity.ApprovalInstance, error) {
	tpl, err := s.repos.Template.FindByCode(ctx, req.TemplateCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("审批模板不存在: %w", engine.ErrNotFound)
		}
		return nil, err
	}
	if tpl.Status != entity.TemplateStatusActive {
		return nil, fmt.Errorf("审批模板已停用: %w", engine.ErrNotFound)
	}

	initiator, err := s.repos.User.FindByID(ctx, initiatorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("发起人不存在: %w", engine.ErrNotFound)
		}
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s - %s", tpl.Name, initiator.Name)
	}
	urgency := req.Urgency
	if urgency == "" {
		urgency = entity.UrgencyNormal
	}

	fctx := &engine.FlowContext{
		FormData: req.FormData,
		Initiator: engine.Initiator{
			ID:           initiator.ID,
			Name:         initiator.Name,
			DepartmentID: initiator.DepartmentID,
		},
		Entity: engine.EntityRef{Type: req.EntityType, ID: req.EntityID},
	}

	var inst *entity.ApprovalInstance
	var createdCCs []entity.ApprovalCarbonCopy

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flow, ferr := s.eng.Router().SelectFlow(ctx, tx, tpl.ID, fctx)
		if ferr != nil {
			return fmt.Errorf("选择审批流程失败: %w", ferr)
		}

		instanceNo, nerr := s.repos.Instance.NextInstanceNo(tx, time.Now())
		if nerr != nil {
			return fmt.Errorf("生成审批编号失败: %w", nerr)
		}

		now := time.Now()
		inst = &entity.ApprovalInstance{
			ID:          uuid.New().String(),
			InstanceNo:  instanceNo,
			TemplateID:  tpl.ID,
			FlowID:      flow.ID,
			EntityType:  req.EntityType,
			EntityID:    req.EntityID,
			Title:       title,
			Summary:     req.Summary,
			FormData:    req.FormData,
			InitiatorID: initiator.ID,
			Status:      entity.InstanceStatusPending,
			Urgency:     urgency,
			SubmittedAt: &now,
		}
		if cerr := tx.Create(inst).Error; cerr != nil {
			return fmt.Errorf("创建审批实例失败: %w", cerr)
		}

		if lerr := s.eng.AppendLog(tx, &engine.LogEntry{
			InstanceID:   inst.ID,
			OperatorID:   initiator.ID,
			OperatorName: initiator.Name,
			Action:       entity.ActionSubmit,
			FromStatus:   entity.InstanceStatusDraft,
			ToStatus:     entity.InstanceStatusPending,
		}); lerr != nil {
			return lerr
		}

		first, ferr2 := s.eng.FirstNode(tx, flow.ID)
		if ferr2 != nil {
			return ferr2
		}
		if first != nil {
			inst.CurrentNodeID = &first.ID
			if serr := tx.Save(inst).Error; serr != nil {
				return serr
			}
			if ferr3 := s.eng.FanOutNode(ctx, tx, inst, first); ferr3 != nil {
				return ferr3
			}
		}
		// 流程没有任何审批节点时实例保持 PENDING，等待其他途径推进

		if len(req.CCUserIDs) > 0 {
			ccs, ccerr := s.eng.Executor().CreateCarbonCopies(ctx, tx, inst, req.CCUserIDs, entity.CCSourceInitiator, initiator.ID)
			if ccerr != nil {
				return fmt.Errorf("创建抄送记录失败: %w", ccerr)
			}
			createdCCs = ccs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notifier := s.eng.Notifier(); notifier != nil {
		for _, cc := range createdCCs {
			userID := cc.UserID
			go notifier.CarbonCopied(context.Background(), inst, userID)
		}
	}
	return inst, nil
}

// SaveDraft 暂存草稿
// 只做模板和发起人校验，不选流程、不展开任务、不写动作日志
func (s *SubmitService) SaveDraft(ctx context.Context, req *SubmitRequest, initiatorID string) (*entity.ApprovalInstance, error) {
	tpl, err := s.repos.Template.FindByCode(ctx, req.TemplateCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("审批模板不存在: %w", engine.ErrNotFound)
		}
		return nil, err
	}
	if tpl.Status != entity.TemplateStatusActive {
		return nil, fmt.Errorf("审批模板已停用: %w", engine.ErrNotFound)
	}

	initiator, err := s.repos.User.FindByID(ctx, initiatorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("发起人不存在: %w", engine.ErrNotFound)
		}
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s - %s", tpl.Name, initiator.Name)
	}
	urgency := req.Urgency
	if urgency == "" {
		urgency = entity.UrgencyNormal
	}

	var inst *entity.ApprovalInstance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instanceNo, nerr := s.repos.Instance.NextInstanceNo(tx, time.Now())
		if nerr != nil {
			return fmt.Errorf("生成审批编号失败: %w", nerr)
		}
		inst = &entity.ApprovalInstance{
			ID:          uuid.New().String(),
			InstanceNo:  instanceNo,
			TemplateID:  tpl.ID,
			EntityType:  req.EntityType,
			EntityID:    req.EntityID,
			Title:       title,
			Summary:     req.Summary,
			FormData:    req.FormData,
			InitiatorID: initiator.ID,
			Status:      entity.InstanceStatusDraft,
			Urgency:     urgency,
		}
		return tx.Create(inst).Error
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}
