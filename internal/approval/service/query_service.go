package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// QueryService 审批查询服务 —— 只读访问器
type QueryService struct {
	db    *gorm.DB
	repos *repository.Repositories
}

// NewQueryService 创建审批查询服务
func NewQueryService(db *gorm.DB, repos *repository.Repositories) *QueryService {
	return &QueryService{db: db, repos: repos}
}

// PendingTasks 我的待办任务
func (s *QueryService) PendingTasks(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalTask, int64, error) {
	return s.repos.Task.ListPendingByAssignee(ctx, userID, page, pageSize)
}

// HandledTasks 我的已办任务
func (s *QueryService) HandledTasks(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalTask, int64, error) {
	return s.repos.Task.ListHandledByAssignee(ctx, userID, page, pageSize)
}

// MyInstances 我发起的审批
func (s *QueryService) MyInstances(ctx context.Context, userID string, page, pageSize int, filters map[string]interface{}) ([]entity.ApprovalInstance, int64, error) {
	if filters == nil {
		filters = make(map[string]interface{})
	}
	filters["initiator_id"] = userID
	return s.repos.Instance.List(ctx, page, pageSize, filters)
}

// InstanceDetail 实例详情
type InstanceDetail struct {
	Instance *entity.ApprovalInstance   `json:"instance"`
	Tasks    []entity.ApprovalTask      `json:"tasks"`
	Logs     []entity.ApprovalActionLog `json:"logs"`
	Comments []entity.ApprovalComment   `json:"comments"`
	CCs      []entity.ApprovalCarbonCopy `json:"ccs"`
}

// GetInstanceDetail 获取实例详情（任务、流水、评论、抄送一并返回）
func (s *QueryService) GetInstanceDetail(ctx context.Context, instanceID string) (*InstanceDetail, error) {
	inst, err := s.repos.Instance.FindByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repos.Task.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	logs, err := s.repos.ActionLog.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repos.Comment.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	ccs, err := s.repos.CC.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	return &InstanceDetail{
		Instance: inst,
		Tasks:    tasks,
		Logs:     logs,
		Comments: comments,
		CCs:      ccs,
	}, nil
}

// CCInbox 我的抄送收件箱
func (s *QueryService) CCInbox(ctx context.Context, userID string, page, pageSize int) ([]entity.ApprovalCarbonCopy, int64, error) {
	return s.repos.CC.ListByUser(ctx, userID, page, pageSize)
}

// MarkCCRead 标记抄送已读
func (s *QueryService) MarkCCRead(ctx context.Context, ccID, userID string) error {
	return s.repos.CC.MarkRead(ctx, ccID, userID)
}

// instanceExportHeaders 审批导出表头
var instanceExportHeaders = []string{
	"审批编号", "标题", "业务类型", "状态", "紧急程度", "发起时间", "完成时间",
}

// ExportInstances 导出我发起的审批列表
func (s *QueryService) ExportInstances(ctx context.Context, userID string, filters map[string]interface{}) (*excelize.File, string, error) {
	if filters == nil {
		filters = make(map[string]interface{})
	}
	filters["initiator_id"] = userID
	instances, _, err := s.repos.Instance.List(ctx, 1, 10000, filters)
	if err != nil {
		return nil, "", fmt.Errorf("查询审批列表失败: %w", err)
	}

	f := excelize.NewFile()
	sheet := "审批列表"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	// 写入表头
	for i, h := range instanceExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	// 写入数据行
	for rowIdx, inst := range instances {
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), inst.InstanceNo)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), inst.Title)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), inst.EntityType)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), statusText(inst.Status))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), urgencyText(inst.Urgency))
		if inst.SubmittedAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), inst.SubmittedAt.Format("2006-01-02 15:04"))
		}
		if inst.CompletedAt != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), inst.CompletedAt.Format("2006-01-02 15:04"))
		}
	}

	// 列宽
	colWidths := []float64{16, 30, 14, 10, 10, 18, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("审批列表_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}

func statusText(status string) string {
	switch status {
	case entity.InstanceStatusDraft:
		return "草稿"
	case entity.InstanceStatusPending:
		return "审批中"
	case entity.InstanceStatusApproved:
		return "已通过"
	case entity.InstanceStatusRejected:
		return "已拒绝"
	case entity.InstanceStatusCancelled:
		return "已撤回"
	case entity.InstanceStatusTerminated:
		return "已终止"
	}
	return status
}

func urgencyText(urgency string) string {
	switch urgency {
	case entity.UrgencyUrgent:
		return "紧急"
	case entity.UrgencyCritical:
		return "特急"
	}
	return "普通"
}
