package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/handler"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/repository"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/service"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/config"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/middleware"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/shared/feishu"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting approval service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 建表
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Department{},
		&entity.Role{},
		&entity.UserRole{},
		&entity.ApprovalTemplate{},
		&entity.ApprovalFlow{},
		&entity.ApprovalNodeDefinition{},
		&entity.ApprovalInstance{},
		&entity.ApprovalTask{},
		&entity.ApprovalCarbonCopy{},
		&entity.ApprovalComment{},
		&entity.ApprovalActionLog{},
		&entity.ApprovalDelegate{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化飞书客户端
	var feishuClient *feishu.Client
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" {
		feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		zapLogger.Info("Feishu client initialized")
	} else {
		zapLogger.Warn("Feishu not configured, notifications disabled")
	}

	// 组装审批引擎
	var notifier engine.Notifier
	if feishuClient != nil {
		notifier = engine.NewFeishuNotifier(feishuClient, db)
	}
	eng := engine.New(
		db,
		engine.NewDefaultRouter(),
		engine.NewDefaultTaskExecutor(),
		engine.NewDefaultDelegateResolver(),
		notifier,
		engine.NewAdapterRegistry(),
	)

	// 仓库、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, eng, rdb, cfg)
	handlers := handler.NewHandlers(services, repos)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 审批实例
		approvals := v1.Group("/approvals")
		{
			approvals.POST("", h.Approval.Submit)
			approvals.POST("/draft", h.Approval.SaveDraft)
			approvals.GET("/mine", h.Approval.MyInstances)
			approvals.GET("/export", h.Approval.Export)
			approvals.GET("/:id", h.Approval.Detail)
			approvals.POST("/:id/cc", h.Approval.AddCC)
			approvals.POST("/:id/withdraw", h.Approval.Withdraw)
			approvals.POST("/:id/terminate", middleware.RequireRole(middleware.AdminRole), h.Approval.Terminate)
			approvals.POST("/:id/comments", h.Approval.AddComment)
		}

		// 审批任务
		tasks := v1.Group("/approval-tasks")
		{
			tasks.GET("/pending", h.Approval.PendingTasks)
			tasks.GET("/handled", h.Approval.HandledTasks)
			tasks.POST("/:id/approve", h.Approval.Approve)
			tasks.POST("/:id/reject", h.Approval.Reject)
			tasks.POST("/:id/return", h.Approval.Return)
			tasks.POST("/:id/transfer", h.Approval.Transfer)
			tasks.POST("/:id/add-approver", h.Approval.AddApprover)
			tasks.POST("/:id/remind", h.Approval.Remind)
		}

		// 抄送
		cc := v1.Group("/approval-cc")
		{
			cc.GET("", h.Approval.CCInbox)
			cc.PUT("/:id/read", h.Approval.MarkCCRead)
		}

		// 附件
		v1.POST("/approval-attachments", h.Attachment.Upload)
		v1.GET("/approval-attachments/download", h.Attachment.Download)
	}
}
