package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/user/peninemate/internal/utils"
)

// AdminAuth 管理接口令牌校验中间件。
// 未配置令牌时拒绝所有请求，避免空令牌意外放行。
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			utils.Error(c, http.StatusForbidden, "管理接口未启用")
			c.Abort()
			return
		}

		provided := c.GetHeader("X-Admin-Token")
		if provided == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				provided = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			utils.Unauthorized(c, "令牌无效")
			c.Abort()
			return
		}

		c.Next()
	}
}
