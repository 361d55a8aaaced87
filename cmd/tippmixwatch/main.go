package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/tippmixwatch/internal/core"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers []string // 自定义HTTP请求头

	// 采集参数
	mode           string
	dbPath         string
	interval       int
	headless       bool
	monitorNetwork bool
	proxyURL       string
)

var rootCmd = &cobra.Command{
	Use:   "tippmixwatch",
	Short: "体育赔率持续采集工具",
	Long: `TippmixWatch - 面向强反爬目标的体育赔率采集工具 (Go版本)

双路径持续采集赔率数据并落盘SQLite,支持:
  • 无头浏览器被动抓取整站网络流量
  • 直连API轮询作为冗余路径
  • 地理封锁自动识别与代理轮换
  • 幂等写入,任意路径重复看到同一场比赛不产生重复行
  • 自定义HTTP请求头

使用示例:
  # 双路径采集(默认)
  tippmixwatch

  # 仅API轮询,指定数据库与强制代理
  tippmixwatch -m poll --db odds.db --proxy socks5://127.0.0.1:1080

  # 手动扫描可用代理
  tippmixwatch proxyscan

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 初始化日志系统
		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		// 布尔flag只有显式传入时才覆盖配置文件
		var headlessFlag, monitorFlag *bool
		if cmd.Flags().Changed("headless") {
			headlessFlag = &headless
		}
		if cmd.Flags().Changed("monitor-network") {
			monitorFlag = &monitorNetwork
		}
		config.MergeCLIFlags(mode, dbPath, interval, headlessFlag, monitorFlag, proxyURL)

		if err := ValidateFlags(config); err != nil {
			return err
		}

		// 信号处理(Ctrl+C优雅退出)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner, err := core.NewRunner(config, headers)
		if err != nil {
			return fmt.Errorf("装配采集器失败: %w", err)
		}

		utils.Infof("✨ TippmixWatch %s 启动 (模式=%s)", Version, config.Scrape.Mode)
		if err := runner.Run(ctx); err != nil {
			return fmt.Errorf("采集退出: %w", err)
		}
		utils.Info("✨ 采集已停止")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("TippmixWatch %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - 体育赔率持续采集工具")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	// 采集参数
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "采集模式 (capture|poll|both)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "SQLite数据库路径")
	rootCmd.Flags().IntVarP(&interval, "interval", "i", 0, "采集间隔(秒)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&monitorNetwork, "monitor-network", true, "网络事件落盘开关")
	rootCmd.Flags().StringVar(&proxyURL, "proxy", "", "强制代理URL(覆盖轮换状态)")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(proxyscanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
