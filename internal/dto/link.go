package dto

import (
	"github.com/gin-gonic/gin"

	"microlink-go/pkg/utils"
)

// CreateLinkRequest 用于创建短链的请求参数
type CreateLinkRequest struct {
	ShortCode string `json:"short_code" binding:"required,max=64"`
	TargetURL string `json:"target_url" binding:"required,max=2048"`
}

// UpdateLinkRequest 用于更新短链目标地址的请求参数
type UpdateLinkRequest struct {
	TargetURL string `json:"target_url" binding:"required,max=2048"`
}

// UpdateLinkStatusRequest 启用/禁用短链
type UpdateLinkStatusRequest struct {
	Status *int `json:"status" binding:"required,oneof=0 1"`
}

// Normalize 规范化请求：目标地址缺少协议时补全 https://
func (r *CreateLinkRequest) Normalize() {
	r.TargetURL = utils.NormalizeTargetURL(r.TargetURL)
}

// Validate 自定义验证逻辑（在 Normalize 之后调用）
func (r *CreateLinkRequest) Validate() error {
	if err := utils.ValidateShortCode(r.ShortCode); err != nil {
		return gin.Error{
			Err:  err,
			Type: gin.ErrorTypeBind,
		}
	}

	if err := utils.ValidateTargetURL(r.TargetURL); err != nil {
		return gin.Error{
			Err:  err,
			Type: gin.ErrorTypeBind,
		}
	}

	return nil
}
