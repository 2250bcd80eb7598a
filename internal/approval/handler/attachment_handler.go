package handler

import (
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/service"
	"github.com/gin-gonic/gin"
)

// AttachmentHandler 审批附件处理器
type AttachmentHandler struct {
	svc *service.AttachmentService
}

// NewAttachmentHandler 创建审批附件处理器
func NewAttachmentHandler(svc *service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// Upload POST /approval-attachments
func (h *AttachmentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传文件")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	attachment, err := h.svc.Upload(c.Request.Context(), file, header.Filename, header.Size, contentType)
	if err != nil {
		WriteError(c, err)
		return
	}
	Created(c, attachment)
}

// Download GET /approval-attachments/download?object_name=xxx&file_name=xxx
func (h *AttachmentHandler) Download(c *gin.Context) {
	objectName := c.Query("object_name")
	if objectName == "" {
		BadRequest(c, "object_name 不能为空")
		return
	}
	url, err := h.svc.PresignedURL(c.Request.Context(), objectName, c.Query("file_name"), 15*time.Minute)
	if err != nil {
		WriteError(c, err)
		return
	}
	Success(c, gin.H{"url": url})
}
