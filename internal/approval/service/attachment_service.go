package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// AttachmentService 审批附件服务 —— 附件落 MinIO，业务表只存对象名
type AttachmentService struct {
	minioClient *minio.Client
	bucketName  string
}

// NewAttachmentService 创建审批附件服务
func NewAttachmentService(minioClient *minio.Client, bucketName string) *AttachmentService {
	return &AttachmentService{minioClient: minioClient, bucketName: bucketName}
}

// Attachment 上传结果
type Attachment struct {
	ObjectName  string `json:"object_name"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// Upload 上传附件
func (s *AttachmentService) Upload(ctx context.Context, reader io.Reader, fileName string, fileSize int64, contentType string) (*Attachment, error) {
	if s.minioClient == nil {
		return nil, fmt.Errorf("对象存储未配置: %w", engine.ErrInvalid)
	}

	// 生成存储路径
	objectName := fmt.Sprintf("approvals/%s/%s%s", time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	_, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("上传附件失败: %w", err)
	}

	return &Attachment{
		ObjectName:  objectName,
		FileName:    fileName,
		FileSize:    fileSize,
		ContentType: contentType,
	}, nil
}

// PresignedURL 生成附件的临时下载链接
func (s *AttachmentService) PresignedURL(ctx context.Context, objectName, fileName string, expiry time.Duration) (string, error) {
	if s.minioClient == nil {
		return "", fmt.Errorf("对象存储未配置: %w", engine.ErrInvalid)
	}

	params := make(url.Values)
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	}
	u, err := s.minioClient.PresignedGetObject(ctx, s.bucketName, objectName, expiry, params)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return u.String(), nil
}
