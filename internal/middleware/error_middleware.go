package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"microlink-go/internal/apperrors"
	"microlink-go/internal/i18n"
	"microlink-go/response"
)

// GlobalErrorMiddleware 全局错误中间件
// AppError 的 Message 是 i18n 消息键，在这里按请求语言本地化；
// 底层存储错误只进日志，不透给客户端
func GlobalErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// 如果有错误发生
		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				var appErr *apperrors.AppError
				if errors.As(err.Err, &appErr) {
					msg := i18n.T(c.Request.Context(), appErr.Message, nil)
					c.AbortWithStatusJSON(appErr.Code, response.Error(msg))
					return
				}
			}

			// 默认处理未定义的错误
			msg := i18n.T(c.Request.Context(), "error.system", nil)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(msg))
			return
		}
	}
}
