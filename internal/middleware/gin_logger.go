package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ZapGinLogger 访问日志中间件
// 错误中间件把 AppError 转成响应后，这里还要留一条带错误详情的访问记录
func ZapGinLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []zap.Field{
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()), // NoRoute 时为空串
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		logger.Info("HTTP Request", fields...)
	}
}
