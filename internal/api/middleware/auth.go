package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/microblog/internal/auth"
	"github.com/d60-Lab/microblog/internal/service"
	"github.com/d60-Lab/microblog/pkg/response"
)

const userIDKey = "user_id"

// Auth 校验 Bearer token，并把用户 ID 写入上下文
func Auth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		id, err := tokens.Verify(raw)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// CurrentUserID returns the id set by Auth.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// LastSeen 每个已认证请求结束后刷新 last_seen；失败只记日志
func LastSeen(users service.UserService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		id, ok := CurrentUserID(c)
		if !ok {
			return
		}
		if err := users.TouchLastSeen(c.Request.Context(), id); err != nil {
			log.Warn("touch last_seen failed", zap.Uint("user_id", id), zap.Error(err))
		}
	}
}
