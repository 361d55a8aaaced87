package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  TippmixWatch Go版本环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)

	if !strings.HasPrefix(goVersion, "go1.23") &&
		!strings.HasPrefix(goVersion, "go1.24") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查Chromium/Chrome(rod也可自动下载,本地已装则省流量)
	browserFound := false
	for _, bin := range []string{"chromium", "chromium-browser", "google-chrome", "chrome"} {
		if checkCommand(bin, "--version") {
			fmt.Printf("✅ 浏览器已安装: %s\n", bin)
			browserFound = true
			break
		}
	}
	if !browserFound {
		fmt.Println("⚠️  未检测到本地Chromium/Chrome - rod将在首次运行时自动下载")
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在整理依赖...")
		cmd := exec.Command("go", "mod", "tidy")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod tidy失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖整理完成")
		}

		fmt.Println("正在下载依赖...")
		cmd = exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/tippmixwatch",
		"internal/core",
		"internal/capture",
		"internal/blocker",
		"internal/extract",
		"internal/store",
		"internal/models",
		"internal/utils",
		"scripts",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println("✨ 环境验证通过,可以开始采集")
		fmt.Println("   构建: go build -o tippmixwatch ./cmd/tippmixwatch")
	} else {
		fmt.Println("❌ 环境验证未通过,请按提示修复")
		os.Exit(1)
	}
}

func checkCommand(name string, args ...string) bool {
	cmd := exec.Command(name, args...)
	return cmd.Run() == nil
}
