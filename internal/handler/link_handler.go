package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"microlink-go/internal/apperrors"
	"microlink-go/internal/dto"
	"microlink-go/internal/i18n"
	"microlink-go/internal/service"
	"microlink-go/response"
)

// CreateLinkHandler POST /api/links
func CreateLinkHandler(c *gin.Context) {
	var req dto.CreateLinkRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		// 记录请求上下文（方法、路径）
		zap.L().Warn("Request body binding failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		_ = c.Error(apperrors.InvalidRequestErrorDefault())
		return
	}

	link, err := service.RegisterLink(c.Request.Context(), req)
	if err != nil {
		zap.L().Warn("Link creation failed",
			zap.Error(err),
			zap.String("short_code", req.ShortCode),
		)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, response.OK(link, i18n.T(c.Request.Context(), "link_created", nil)))
}

// ListLinksHandler GET /api/links 分页查询短链列表（点击量降序）
func ListLinksHandler(c *gin.Context) {
	pageStr := c.DefaultQuery("page", "1")
	sizeStr := c.DefaultQuery("size", "10")
	shortCode := c.Query("shortCode")

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		_ = c.Error(apperrors.InvalidRequestError("error.invalid_page"))
		return
	}

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 || size > 100 {
		_ = c.Error(apperrors.InvalidRequestError("error.invalid_size"))
		return
	}

	pageResp, err := service.ListLinks(c.Request.Context(), page, size, shortCode)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.OK(pageResp, i18n.T(c.Request.Context(), "success", nil)))
}

// GetLinkHandler GET /api/links/:short_code 查询单条短链（不计点击）
func GetLinkHandler(c *gin.Context) {
	shortCode := c.Param("short_code")

	link, err := service.GetLinkByCode(c.Request.Context(), shortCode)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.OK(link, i18n.T(c.Request.Context(), "success", nil)))
}

// UpdateLinkHandler PUT /api/links/:id 更新目标地址
func UpdateLinkHandler(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id < 1 {
		zap.L().Warn("Invalid link ID",
			zap.String("id", idStr),
			zap.Error(err))
		_ = c.Error(apperrors.InvalidRequestError("error.invalid_id"))
		return
	}

	var req dto.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Warn("Request body binding failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		_ = c.Error(apperrors.InvalidRequestErrorDefault())
		return
	}

	if err := service.UpdateLinkTarget(c.Request.Context(), uint(id), req.TargetURL); err != nil {
		zap.L().Warn("Link update failed",
			zap.Error(err),
			zap.Uint("id", uint(id)),
			zap.String("target_url", req.TargetURL),
		)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.OK(struct{}{}, i18n.T(c.Request.Context(), "link_updated", nil)))
}

// UpdateLinkStatusHandler PUT /api/links/status/:id 启用/禁用短链
func UpdateLinkStatusHandler(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 1 {
		_ = c.Error(apperrors.InvalidRequestError("error.invalid_id"))
		return
	}

	var req dto.UpdateLinkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.InvalidRequestErrorDefault())
		return
	}

	if err := service.SetLinkStatus(c.Request.Context(), uint(id), *req.Status == 1); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response.OK(struct{}{}, i18n.T(c.Request.Context(), "link_status_updated", nil)))
}
