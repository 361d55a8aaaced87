package core

import (
	"fmt"
	"net/http"
	"strings"
)

// MobileUserAgent 移动端Chrome指纹,与浏览器路径保持一致
const MobileUserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36"

// defaultHeaders 伪装成真实移动端浏览器的基础头部
var defaultHeaders = map[string]string{
	"User-Agent":      MobileUserAgent,
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "hu-HU,hu;q=0.9,en;q=0.8",
	"Accept-Encoding": "gzip, deflate, br",
	"Referer":         "https://www.tippmix.hu/",
	"Origin":          "https://www.tippmix.hu",
}

// BuildHeaders 合成请求头部
// 优先级: CLI(-H) > 配置文件headers段 > 内置默认值
func BuildHeaders(configHeaders map[string]string, cliHeaders []string) (map[string]string, error) {
	out := make(map[string]string, len(defaultHeaders))
	for name, value := range defaultHeaders {
		out[name] = value
	}
	// viper会把yaml键名全部转成小写,统一规范化后再覆盖,
	// 避免user-agent和User-Agent并存导致覆盖顺序不确定
	for name, value := range configHeaders {
		out[http.CanonicalHeaderKey(name)] = value
	}
	for _, raw := range cliHeaders {
		name, value, err := parseHeaderFlag(raw)
		if err != nil {
			return nil, err
		}
		out[http.CanonicalHeaderKey(name)] = value
	}
	return out, nil
}

// parseHeaderFlag 解析"Name: Value"形式的命令行头部
func parseHeaderFlag(raw string) (string, string, error) {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("无效的头部格式 [%s],应为 'Name: Value'", raw)
	}
	name := strings.TrimSpace(raw[:idx])
	value := strings.TrimSpace(raw[idx+1:])
	if name == "" {
		return "", "", fmt.Errorf("无效的头部格式 [%s],头部名称为空", raw)
	}
	return name, value, nil
}
