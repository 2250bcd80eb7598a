package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminRole 审批管理员角色，对所有角色门槛放行
const AdminRole = "approval_admin"

const requestIDHeader = "X-Request-ID"

// abortJSON 中间件统一的拒绝响应
func abortJSON(c *gin.Context, status, code int, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
	c.Abort()
}

// Logger 请求日志中间件，按响应状态分级
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		// 操作人ID由JWT认证写入，未认证的路由没有
		if operatorID := c.GetString("user_id"); operatorID != "" {
			fields = append(fields, zap.String("user_id", operatorID))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// CORS 跨域中间件
func CORS() gin.HandlerFunc {
	allowHeaders := strings.Join([]string{
		"Content-Type", "Content-Length", "Accept", "Accept-Encoding",
		"Authorization", "Origin", "Cache-Control", "X-Requested-With",
		requestIDHeader,
	}, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID 请求ID透传，客户端没带就生成一个
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// JWTClaims 审批服务的JWT载荷
type JWTClaims struct {
	UserID      string   `json:"uid"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	FeishuUID   string   `json:"feishu_uid"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// extractToken 从 Authorization 头取 Bearer token
// 取不到时回退 query 参数，附件下载这类带不了自定义头的场景用
func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if parts := strings.SplitN(auth, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}

// JWTAuth JWT认证中间件，通过后把操作人信息写入请求上下文
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			abortJSON(c, http.StatusUnauthorized, 40100, "Authorization is required")
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(*jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, 40102, "Invalid or expired token")
			return
		}
		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			abortJSON(c, http.StatusUnauthorized, 40103, "Invalid token claims")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("user_email", claims.Email)
		c.Set("feishu_uid", claims.FeishuUID)
		c.Set("roles", claims.Roles)
		c.Set("permissions", claims.Permissions)
		c.Set("claims", claims)
		c.Next()
	}
}

// RequirePermission 权限点检查，"*" 为全量授权
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, ok := stringSlice(c, "permissions")
		if !ok {
			abortJSON(c, http.StatusForbidden, 40300, "No permissions found")
			return
		}
		for _, p := range perms {
			if p == permission || p == "*" {
				c.Next()
				return
			}
		}
		abortJSON(c, http.StatusForbidden, 40302, "Permission denied: "+permission)
	}
}

// RequireRole 角色检查
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, ok := stringSlice(c, "roles")
		if !ok {
			abortJSON(c, http.StatusForbidden, 40310, "No roles found")
			return
		}
		for _, r := range roles {
			if r == role || r == AdminRole {
				c.Next()
				return
			}
		}
		abortJSON(c, http.StatusForbidden, 40312, "Role required: "+role)
	}
}

// stringSlice 从请求上下文取字符串切片，缺失或类型不符都算取不到
func stringSlice(c *gin.Context, key string) ([]string, bool) {
	v, exists := c.Get(key)
	if !exists {
		return nil, false
	}
	s, ok := v.([]string)
	return s, ok
}
