package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/tippmixwatch/internal/blocker"
	"github.com/RecoveryAshes/tippmixwatch/internal/core"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// proxyscanCmd 手动驱动一次代理轮换
// 不碰数据库,扫描结果只写入代理状态文件
var proxyscanCmd = &cobra.Command{
	Use:   "proxyscan",
	Short: "扫描公共代理并保存首个匈牙利出口",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		state, err := blocker.NewProxyState(config.Proxy.StateFile, "")
		if err != nil {
			return fmt.Errorf("加载代理状态失败: %w", err)
		}

		prober := blocker.NewWhoamiProber()
		if config.Mitigation.WhoamiURL != "" {
			prober.Endpoint = config.Mitigation.WhoamiURL
		}
		mitigator := blocker.NewMitigator(
			blocker.DefaultSources(config.Mitigation.TargetCountry),
			prober,
			state,
			config.Mitigation.TargetCountry,
		)
		mitigator.Configure(config.Mitigation.CandidateCap, config.Mitigation.BatchWidth)

		// 探测进度条
		bar := utils.NewProgressBar(config.Mitigation.CandidateCap, "探测代理出口")
		mitigator.OnProbe = func(done, total int) {
			bar.ChangeMax(total)
			_ = bar.Set(done)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		utils.Infof("🔍 开始扫描代理 (目标国家=%s)", config.Mitigation.TargetCountry)
		winner, err := mitigator.RotateProxy(ctx)
		_ = bar.Finish()
		fmt.Println()
		if err != nil {
			return fmt.Errorf("代理扫描失败: %w", err)
		}
		if winner == "" {
			utils.Warn("⚠️ 未找到可用的目标国家出口代理")
			return nil
		}

		utils.Infof("✅ 已保存可用代理: %s → %s", winner, config.Proxy.StateFile)
		return nil
	},
}
