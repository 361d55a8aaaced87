package blocker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ProxyState 当前可信代理的单槽耐久存储
// 互斥保护的内存值 + 整文件覆盖写的落盘副本;读者要么看到旧值要么
// 看到新值,不会看到半写状态。只有缓解引擎会提交新值
type ProxyState struct {
	mu       sync.Mutex
	path     string
	override string // 显式配置的代理,优先于落盘值
	current  string
}

// NewProxyState 创建状态槽并从磁盘装载既有值
// override非空时表示运行配置中显式指定了代理,读取时优先返回
func NewProxyState(path, override string) (*ProxyState, error) {
	s := &ProxyState{path: path, override: strings.TrimSpace(override)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load 从磁盘装载,文件不存在不算错误
func (s *ProxyState) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取代理状态文件失败 [%s]: %w", s.path, err)
	}
	s.mu.Lock()
	s.current = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Active 读取当前应使用的代理,优先级: 显式配置 > 落盘槽位 > 空
// 每次新建浏览器会话/HTTP客户端时读取一次
func (s *ProxyState) Active() string {
	if s.override != "" {
		return s.override
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Commit 提交新的可信代理并落盘,跨进程重启存活
// 先写临时文件再rename,保证并发读者不会读到半写内容
func (s *ProxyState) Commit(proxyURL string) error {
	proxyURL = strings.TrimSpace(proxyURL)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建状态目录失败 [%s]: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".active_proxy-*")
	if err != nil {
		return fmt.Errorf("创建临时状态文件失败: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(proxyURL); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭状态文件失败: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换状态文件失败: %w", err)
	}

	s.mu.Lock()
	s.current = proxyURL
	s.mu.Unlock()
	return nil
}
