package blocker

import (
	"os"
	"path/filepath"
	"testing"
)

// TestProxyState_CommitAndReload 测试提交后跨实例存活
func TestProxyState_CommitAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_proxy.txt")

	s1, err := NewProxyState(path, "")
	if err != nil {
		t.Fatalf("创建状态失败: %v", err)
	}
	if s1.Active() != "" {
		t.Errorf("初始状态应为空, 得到 %q", s1.Active())
	}

	if err := s1.Commit("socks5://1.2.3.4:1080"); err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if s1.Active() != "socks5://1.2.3.4:1080" {
		t.Errorf("提交后Active = %q", s1.Active())
	}

	// 模拟进程重启: 新实例从同一文件装载
	s2, err := NewProxyState(path, "")
	if err != nil {
		t.Fatalf("重新装载失败: %v", err)
	}
	if s2.Active() != "socks5://1.2.3.4:1080" {
		t.Errorf("重启后Active = %q, 应从磁盘恢复", s2.Active())
	}
}

// TestProxyState_OverridePrecedence 测试显式配置优先于落盘槽位
func TestProxyState_OverridePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_proxy.txt")
	if err := os.WriteFile(path, []byte("http://slot.example:8080\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewProxyState(path, "http://forced.example:3128")
	if err != nil {
		t.Fatalf("创建状态失败: %v", err)
	}
	if s.Active() != "http://forced.example:3128" {
		t.Errorf("Active = %q, 显式配置必须优先", s.Active())
	}

	// 轮换提交不影响override的优先级
	if err := s.Commit("http://rotated.example:8080"); err != nil {
		t.Fatal(err)
	}
	if s.Active() != "http://forced.example:3128" {
		t.Errorf("提交后Active = %q, 显式配置仍应优先", s.Active())
	}
}

// TestProxyState_TrimsWhitespace 测试文件内容的空白清理
func TestProxyState_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "active_proxy.txt")
	if err := os.WriteFile(path, []byte("  http://p.example:8080\n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewProxyState(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Active() != "http://p.example:8080" {
		t.Errorf("Active = %q, 应去除空白", s.Active())
	}
}

// TestProxyState_MissingFile 测试文件不存在时正常启动
func TestProxyState_MissingFile(t *testing.T) {
	s, err := NewProxyState(filepath.Join(t.TempDir(), "nope.txt"), "")
	if err != nil {
		t.Fatalf("文件不存在不应报错: %v", err)
	}
	if s.Active() != "" {
		t.Errorf("Active = %q, 期望空", s.Active())
	}
}
