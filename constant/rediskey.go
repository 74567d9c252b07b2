package constant

import "fmt"

// 常量定义
const (
	BasePrefix = "redirect:"
)

// Redis 键模板
const (
	LinkKey = BasePrefix + "link:%s" // redirect:link:shortcode
)

// 缓存有效期（秒）
const (
	LinkCacheTTL  = 3600 // 正常缓存 1 小时
	EmptyCacheTTL = 300  // 空值缓存 5 分钟，防止缓存穿透
)

// GetLinkKey 生成短链缓存 key
func GetLinkKey(shortCode string) string {
	return fmt.Sprintf(LinkKey, shortCode)
}
