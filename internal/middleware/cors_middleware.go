package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CorsMiddleware 自定义跨域中间件
// 前端跑在独立域名/端口，API 必须允许任意来源
func CorsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

		// 设置允许的请求头
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language")

		// 设置允许的方法
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		// 如果是预检请求（OPTIONS），直接返回 204
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatusJSON(http.StatusNoContent, nil)
			return
		}

		c.Next()
	}
}
