package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"microlink-go/internal/apperrors"
	"microlink-go/internal/service"
)

// RedirectHandler GET /:short_code
// 命中后立即 302，点击计数异步落库，不阻塞也不影响响应
func RedirectHandler(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Status(http.StatusNotFound)
		return
	}

	// 去掉前导 '/'，短码只允许单段路径
	shortCode := strings.TrimPrefix(c.Request.URL.Path, "/")
	if shortCode == "" || strings.Contains(shortCode, "/") {
		c.String(http.StatusNotFound, "not found")
		return
	}

	link, err := service.Resolve(c.Request.Context(), shortCode)
	if err != nil {
		// 未知短码返回纯文本 404，存储故障交给错误中间件按 500 处理
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == http.StatusNotFound {
			c.String(http.StatusNotFound, "not found")
			return
		}
		_ = c.Error(err)
		return
	}

	// 记录访问（fire-and-forget）
	service.TrackClick(link.ShortCode)

	// 302 带禁止缓存头：浏览器/代理缓存重定向会吞掉后续点击
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Redirect(http.StatusFound, link.TargetURL)
}

// HealthzHandler GET /healthz
func HealthzHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
