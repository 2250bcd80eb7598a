package service

import (
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Submit     *SubmitService
	Decision   *DecisionService
	Action     *ActionService
	Query      *QueryService
	Attachment *AttachmentService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, repos *repository.Repositories, eng *engine.Engine, rdb *redis.Client, cfg *config.Config) *Services {
	// 初始化MinIO客户端
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			minioClient = nil
		}
	}

	return &Services{
		Submit:     NewSubmitService(db, repos, eng),
		Decision:   NewDecisionService(db, repos, eng),
		Action:     NewActionService(db, repos, eng, rdb),
		Query:      NewQueryService(db, repos),
		Attachment: NewAttachmentService(minioClient, cfg.MinIO.Bucket),
	}
}
