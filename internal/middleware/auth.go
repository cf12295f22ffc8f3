package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/pkg"
)

const ContextUserIDKey = "user_id"

// SessionChecker 可选的会话校验（redis 中的当前 token）
type SessionChecker interface {
	Check(ctx context.Context, userID, token string) error
}

// AuthMiddleware 校验身份提供方签发的 access token。
// 浏览器建立 websocket 不能带 header，所以也接受 ?token= 参数。
func AuthMiddleware(verifier *pkg.TokenVerifier, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing authorization header"})
			return
		}

		claims, err := verifier.ParseAccess(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "invalid or expired token"})
			return
		}

		// redis校验是否是当前有效的token
		if sessions != nil {
			if err := sessions.Check(c.Request.Context(), claims.UserID, tokenStr); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "Account has been logging elsewhere"})
				return
			}
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := c.Query("token"); t != "" {
		return t, true
	}
	return "", false
}

// UserID 取出鉴权后的用户ID
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
