package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/engine"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/approval/entity"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/config"
	"github.com/fulingwei1/non-standard-automation-pms-sub018/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_approval"
	JWTSecret  = "approval-jwt-secret-key-2026"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB creates a test database connection using a dedicated test schema.
// Each test gets an isolated schema that is cleaned up after the test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	host := config.GetEnvOrDefault("DB_HOST", "127.0.0.1")
	port := config.GetEnvOrDefault("DB_PORT", "5432")
	user := config.GetEnvOrDefault("DB_USER", "pms")
	password := config.GetEnvOrDefault("DB_PASSWORD", "pms123")
	dbname := config.GetEnvOrDefault("DB_NAME", "pms_approval")

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// Create a unique test schema for isolation
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	// First: create schema using a temporary connection
	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// Second: open connection with search_path in DSN so ALL pooled connections use test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Migrate test tables
	err = db.AutoMigrate(
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
	)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	// Cleanup on test completion
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		// Reconnect to drop the schema
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			sqlClean, _ := cleanDB.DB()
			if sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupEngine assembles an engine with the default collaborators and no notifier
func SetupEngine(db *gorm.DB) *engine.Engine {
	return engine.New(
		db,
		engine.NewDefaultRouter(),
		engine.NewDefaultTaskExecutor(),
		engine.NewDefaultDelegateResolver(),
		nil,
		engine.NewAdapterRegistry(),
	)
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        userID,
		"uid":        userID,
		"name":       name,
		"email":      email,
		"feishu_uid": "test_feishu_uid",
		"roles":      roles,
		"perms":      permissions,
		"iss":        "pms-approval",
		"iat":        now.Unix(),
		"exp":        now.Add(24 * time.Hour).Unix(),
		"jti":        fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken(
		"test-user-001",
		"Test Admin",
		"admin@test.com",
		[]string{"approval_admin"},
		[]string{"*"},
	)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a handler.Response-like map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedTestUser creates a test user in the database
func SeedTestUser(t *testing.T, db *gorm.DB, id, name, email string) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:           id,
		FeishuUserID: "feishu_" + id,
		Username:     "user_" + id,
		Name:         name,
		Email:        email,
		Status:       "active",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed test user: %v", err)
	}
	return user
}

// SeedTemplate creates an active template with one default flow and the given nodes.
// Each node spec is (name, approverIDs, countersign); approvers are designated users.
func SeedTemplate(t *testing.T, db *gorm.DB, code string, nodes []NodeSpec) (*entity.ApprovalTemplate, *entity.ApprovalFlow) {
	t.Helper()

	tpl := &entity.ApprovalTemplate{
		ID:     uuid.New().String(),
		Code:   code,
		Name:   "测试审批-" + code,
		Status: entity.TemplateStatusActive,
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("Failed to seed template: %v", err)
	}

	flow := &entity.ApprovalFlow{
		ID:         uuid.New().String(),
		TemplateID: tpl.ID,
		Name:       tpl.Name + "-默认流程",
		Version:    1,
		IsDefault:  true,
		Status:     entity.FlowStatusActive,
	}
	if err := db.Create(flow).Error; err != nil {
		t.Fatalf("Failed to seed flow: %v", err)
	}

	for i, spec := range nodes {
		userIDs := make([]interface{}, 0, len(spec.ApproverIDs))
		for _, id := range spec.ApproverIDs {
			userIDs = append(userIDs, id)
		}
		node := &entity.ApprovalNodeDefinition{
			ID:        uuid.New().String(),
			FlowID:    flow.ID,
			Name:      spec.Name,
			NodeOrder: i + 1,
			NodeType:  entity.NodeTypeApproval,
			ApproverConfig: entity.JSONB{
				"type":     entity.ApproverTypeDesignated,
				"user_ids": userIDs,
			},
			Countersign:    spec.Countersign,
			CanTransfer:    true,
			CanAddApprover: true,
			Status:         entity.NodeStatusActive,
		}
		if err := db.Create(node).Error; err != nil {
			t.Fatalf("Failed to seed node: %v", err)
		}
	}
	return tpl, flow
}

// NodeSpec describes one approval node for SeedTemplate
type NodeSpec struct {
	Name        string
	ApproverIDs []string
	Countersign bool
}
