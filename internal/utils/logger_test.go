package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitLogger(t *testing.T) {
	// 创建临时日志目录
	tempDir := t.TempDir()

	config := LogConfig{
		Level:      "debug",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	// 初始化日志器
	err := InitLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	// 验证日志目录已创建
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Errorf("日志目录未创建: %s", tempDir)
	}

	// 写入测试日志
	Info("测试信息日志")
	Warn("测试警告日志")
	Debug("测试调试日志")

	// 等待日志写入
	time.Sleep(100 * time.Millisecond)

	// 验证主日志文件存在
	mainLogPath := filepath.Join(tempDir, "tippmixwatch.log")
	if _, err := os.Stat(mainLogPath); os.IsNotExist(err) {
		t.Errorf("主日志文件未创建: %s", mainLogPath)
	}
}

func TestLogLevels(t *testing.T) {
	tempDir := t.TempDir()

	config := LogConfig{
		Level:      "info",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   false,
	}

	err := InitLogger(config)
	if err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	// 测试各种日志级别
	Info("信息日志测试")
	Infof("格式化信息日志: %s", "测试")
	Warn("警告日志测试")
	Warnf("格式化警告日志: %d", 123)
	Debug("调试日志测试(低于级别,不应写入)")
	Debugf("格式化调试日志: %v", nil)

	time.Sleep(100 * time.Millisecond)
}

func TestErrorLogFileOnlyErrors(t *testing.T) {
	tempDir := t.TempDir()

	config := LogConfig{
		Level:      "debug",
		LogDir:     tempDir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   false,
	}

	if err := InitLogger(config); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("不应出现在错误日志中")
	Errorf("错误日志分流测试: %s", "marker-4417")

	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(tempDir, "tippmixwatch_error.log"))
	if err != nil {
		t.Fatalf("错误日志文件读取失败: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "marker-4417") {
		t.Error("error级别日志未写入错误日志文件")
	}
	if strings.Contains(content, "不应出现在错误日志中") {
		t.Error("info级别日志不应写入错误日志文件")
	}
}

func TestInvalidLogLevelFallsBack(t *testing.T) {
	config := DefaultLogConfig()
	config.LogDir = t.TempDir()
	config.Level = "not-a-level"

	if err := InitLogger(config); err != nil {
		t.Fatalf("非法级别应回退到info而非报错: %v", err)
	}
	Info("回退级别写入测试")
}
