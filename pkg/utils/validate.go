package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var shortCodePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateShortCode 校验 ShortCode 是否合法
func ValidateShortCode(shortCode string) error {
	if shortCode == "" {
		return fmt.Errorf("error.shortcode_required")
	}

	if ContainsWhitespace(shortCode) {
		return fmt.Errorf("error.shortcode_cannot_contain_spaces")
	}

	if len(shortCode) > 64 {
		return fmt.Errorf("error.shortcode_max_length")
	}

	if !shortCodePattern.MatchString(shortCode) {
		return fmt.Errorf("error.shortcode_invalid")
	}

	return nil
}

// NormalizeTargetURL 规范化目标 URL：缺少协议时自动补全 https://
// 必须在唯一性检查之前调用，保证入库的是规范化后的地址
func NormalizeTargetURL(targetURL string) string {
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return targetURL
	}
	if !strings.HasPrefix(targetURL, "http://") && !strings.HasPrefix(targetURL, "https://") {
		return "https://" + targetURL
	}
	return targetURL
}

// ValidateTargetURL 校验目标 URL 的合法性（要求带协议的绝对地址）
func ValidateTargetURL(targetURL string) error {
	// 1. 检查目标 URL 是否为空
	if targetURL == "" {
		return fmt.Errorf("error.target_url_required")
	}

	// 2. URL 格式校验
	u, err := url.ParseRequestURI(targetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("error.target_url_invalid")
	}

	// 3. URL 长度限制
	if len(targetURL) > 2048 {
		return fmt.Errorf("error.target_url_max_length")
	}
	return nil
}

func ContainsWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
