package handler

import (
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/service"
	"github.com/gin-gonic/gin"
)

// ApprovalHandler 审批处理器
type ApprovalHandler struct {
	svc *service.Services
}

// NewApprovalHandler 创建审批处理器
func NewApprovalHandler(svc *service.Services) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// Submit POST /approvals
func (h *ApprovalHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	inst, err := h.svc.Submit.Submit(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, inst)
}

// SaveDraft POST /approvals/draft
func (h *ApprovalHandler) SaveDraft(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	inst, err := h.svc.Submit.SaveDraft(c.Request.Context(), &req, GetUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, inst)
}

type decisionRequest struct {
	Comment     string       `json:"comment"`
	RejectTo    string       `json:"reject_to"`
	Attachments entity.JSONB `json:"attachments"`
}

// Approve POST /approval-tasks/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	task, err := h.svc.Decision.Approve(c.Request.Context(), c.Param("id"), GetUserID(c), req.Comment, req.Attachments)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

// Reject POST /approval-tasks/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	task, err := h.svc.Decision.Reject(c.Request.Context(), c.Param("id"), GetUserID(c), req.Comment, req.RejectTo, req.Attachments)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

type returnRequest struct {
	TargetNodeID string `json:"target_node_id" binding:"required"`
	Comment      string `json:"comment"`
}

// Return POST /approval-tasks/:id/return
func (h *ApprovalHandler) Return(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	task, err := h.svc.Decision.ReturnTo(c.Request.Context(), c.Param("id"), GetUserID(c), req.TargetNodeID, req.Comment)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

type transferRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	Comment      string `json:"comment"`
}

// Transfer POST /approval-tasks/:id/transfer
func (h *ApprovalHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	task, err := h.svc.Decision.Transfer(c.Request.Context(), c.Param("id"), GetUserID(c), req.TargetUserID, req.Comment)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

type addApproverRequest struct {
	ApproverIDs []string `json:"approver_ids" binding:"required"`
	Position    string   `json:"position" binding:"required"`
	Comment     string   `json:"comment"`
}

// AddApprover POST /approval-tasks/:id/add-approver
func (h *ApprovalHandler) AddApprover(c *gin.Context) {
	var req addApproverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	tasks, err := h.svc.Decision.AddApprover(c.Request.Context(), c.Param("id"), GetUserID(c), req.ApproverIDs, req.Position, req.Comment)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"items": tasks})
}

// Remind POST /approval-tasks/:id/remind
func (h *ApprovalHandler) Remind(c *gin.Context) {
	task, err := h.svc.Action.Remind(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, task)
}

type addCCRequest struct {
	UserIDs []string `json:"user_ids" binding:"required"`
}

// AddCC POST /approvals/:id/cc
func (h *ApprovalHandler) AddCC(c *gin.Context) {
	var req addCCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	ccs, err := h.svc.Action.AddCC(c.Request.Context(), c.Param("id"), GetUserID(c), req.UserIDs)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"items": ccs})
}

// Withdraw POST /approvals/:id/withdraw
func (h *ApprovalHandler) Withdraw(c *gin.Context) {
	inst, err := h.svc.Action.Withdraw(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, inst)
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

// Terminate POST /approvals/:id/terminate
func (h *ApprovalHandler) Terminate(c *gin.Context) {
	var req terminateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	inst, err := h.svc.Action.Terminate(c.Request.Context(), c.Param("id"), GetUserID(c), req.Reason)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, inst)
}

// AddComment POST /approvals/:id/comments
func (h *ApprovalHandler) AddComment(c *gin.Context) {
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	comment, err := h.svc.Action.AddComment(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, comment)
}

// PendingTasks GET /approval-tasks/pending
func (h *ApprovalHandler) PendingTasks(c *gin.Context) {
	page, pageSize := GetPagination(c)
	tasks, total, err := h.svc.Query.PendingTasks(c.Request.Context(), GetUserID(c), page, pageSize)
	if err != nil {
		InternalError(c, "获取待办任务失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: tasks,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// HandledTasks GET /approval-tasks/handled
func (h *ApprovalHandler) HandledTasks(c *gin.Context) {
	page, pageSize := GetPagination(c)
	tasks, total, err := h.svc.Query.HandledTasks(c.Request.Context(), GetUserID(c), page, pageSize)
	if err != nil {
		InternalError(c, "获取已办任务失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: tasks,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// MyInstances GET /approvals/mine
func (h *ApprovalHandler) MyInstances(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]interface{}{
		"status":      c.Query("status"),
		"template_id": c.Query("template_id"),
		"entity_type": c.Query("entity_type"),
		"keyword":     c.Query("keyword"),
	}
	instances, total, err := h.svc.Query.MyInstances(c.Request.Context(), GetUserID(c), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取审批列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: instances,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// Detail GET /approvals/:id
func (h *ApprovalHandler) Detail(c *gin.Context) {
	detail, err := h.svc.Query.GetInstanceDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, detail)
}

// CCInbox GET /approval-cc
func (h *ApprovalHandler) CCInbox(c *gin.Context) {
	page, pageSize := GetPagination(c)
	ccs, total, err := h.svc.Query.CCInbox(c.Request.Context(), GetUserID(c), page, pageSize)
	if err != nil {
		InternalError(c, "获取抄送列表失败: "+err.Error())
		return
	}
	Success(c, ListResponse{
		Items: ccs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// MarkCCRead PUT /approval-cc/:id/read
func (h *ApprovalHandler) MarkCCRead(c *gin.Context) {
	if err := h.svc.Query.MarkCCRead(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		InternalError(c, "标记已读失败: "+err.Error())
		return
	}
	Success(c, nil)
}

// Export GET /approvals/export
func (h *ApprovalHandler) Export(c *gin.Context) {
	filters := map[string]interface{}{
		"status":      c.Query("status"),
		"template_id": c.Query("template_id"),
		"entity_type": c.Query("entity_type"),
	}
	f, filename, err := h.svc.Query.ExportInstances(c.Request.Context(), GetUserID(c), filters)
	if err != nil {
		WriteError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
