package main

import (
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/tippmixwatch/internal/core"
)

// validModes 支持的采集模式
var validModes = map[string]bool{
	"capture": true,
	"poll":    true,
	"both":    true,
}

// ValidateFlags 验证合并后的运行配置
func ValidateFlags(config *core.Config) error {
	if !validModes[config.Scrape.Mode] {
		return fmt.Errorf("无效的采集模式: %s (支持 capture/poll/both)", config.Scrape.Mode)
	}

	if config.Scrape.Interval <= 0 {
		return fmt.Errorf("采集间隔必须为正数: %d", config.Scrape.Interval)
	}

	if config.Storage.DBPath == "" {
		return fmt.Errorf("数据库路径不能为空")
	}

	if err := validateURLFlag("target_url", config.Scrape.TargetURL); err != nil {
		return err
	}
	if err := validateURLFlag("api_base", config.Scrape.APIBase); err != nil {
		return err
	}

	if proxy := config.ResolveProxyOverride(); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return fmt.Errorf("无效的代理URL [%s]: %w", proxy, err)
		}
		switch u.Scheme {
		case "http", "https", "socks4", "socks4a", "socks5":
		default:
			return fmt.Errorf("不支持的代理协议: %s (支持 http/https/socks4/socks4a/socks5)", u.Scheme)
		}
	}

	return nil
}

// validateURLFlag 验证URL配置项必须为http(s)绝对地址
func validateURLFlag(name, urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的%s [%s]: %w", name, urlStr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("无效的%s [%s]: 必须以http://或https://开头", name, urlStr)
	}
	if u.Host == "" {
		return fmt.Errorf("无效的%s [%s]: 缺少主机名", name, urlStr)
	}
	return nil
}
