package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/tippmixwatch/internal/blocker"
	"github.com/RecoveryAshes/tippmixwatch/internal/capture"
	"github.com/RecoveryAshes/tippmixwatch/internal/store"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// Runner 采集进程的装配与生命周期管理
type Runner struct {
	cfg     *Config
	headers map[string]string

	store     *store.Store
	state     *blocker.ProxyState
	mitigator *blocker.Mitigator
	sink      *capture.Sink
	sources   []capture.Source
}

// NewRunner 按配置装配全部组件
func NewRunner(cfg *Config, cliHeaders []string) (*Runner, error) {
	headers, err := BuildHeaders(cfg.Headers, cliHeaders)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	state, err := blocker.NewProxyState(cfg.Proxy.StateFile, cfg.ResolveProxyOverride())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("加载代理状态失败: %w", err)
	}

	prober := blocker.NewWhoamiProber()
	if cfg.Mitigation.WhoamiURL != "" {
		prober.Endpoint = cfg.Mitigation.WhoamiURL
	}
	mitigator := blocker.NewMitigator(
		blocker.DefaultSources(cfg.Mitigation.TargetCountry),
		prober,
		state,
		cfg.Mitigation.TargetCountry,
	)
	mitigator.Configure(cfg.Mitigation.CandidateCap, cfg.Mitigation.BatchWidth)

	sink := capture.NewSink(st, mitigator, cfg.Scrape.MonitorNetwork)

	r := &Runner{
		cfg:       cfg,
		headers:   headers,
		store:     st,
		state:     state,
		mitigator: mitigator,
		sink:      sink,
	}
	if err := r.buildSources(); err != nil {
		st.Close()
		return nil, err
	}
	return r, nil
}

// buildSources 按模式装配采集路径
func (r *Runner) buildSources() error {
	mode := r.cfg.Scrape.Mode
	useBrowser := mode == "capture" || mode == "both"
	usePoller := mode == "poll" || mode == "both"
	if !useBrowser && !usePoller {
		return fmt.Errorf("未知的采集模式: %s (支持 capture/poll/both)", mode)
	}

	if useBrowser {
		browser := capture.NewBrowserCapture(capture.BrowserConfig{
			TargetURL:  r.cfg.Scrape.TargetURL,
			UserAgent:  r.headers["User-Agent"],
			Headless:   r.cfg.Scrape.Headless,
			SettleTime: time.Duration(r.cfg.Scrape.WaitTime) * time.Second,
		}, r.state, r.sink, capture.NewResourceGate(r.cfg.Resource.MinFreeMemoryMB))
		r.sources = append(r.sources, browser)
	}

	if usePoller {
		poller := capture.NewAPIPoller(capture.PollerConfig{
			BaseURL: r.cfg.Scrape.APIBase,
			Paths:   r.cfg.Scrape.APIPaths,
			Headers: r.headers,
		}, r.state, r.sink)
		r.sources = append(r.sources, poller)
	}

	return nil
}

// Run 启动全部采集路径并阻塞到ctx取消或某条路径不可恢复
// 任一路径上抛错误即整体停机,避免半瘫状态静默运行
func (r *Runner) Run(ctx context.Context) error {
	defer r.store.Close()

	r.sink.Start(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interval := time.Duration(r.cfg.Scrape.Interval) * time.Second
	errCh := make(chan error, len(r.sources))
	var wg sync.WaitGroup
	for _, src := range r.sources {
		wg.Add(1)
		go func(src capture.Source) {
			defer wg.Done()
			sup := capture.NewSupervisor(src.Name(), interval)
			utils.Infof("🚀 启动采集路径: %s (间隔 %s)", src.Name(), interval)
			if err := sup.Run(runCtx, src.RunCycle); err != nil {
				errCh <- err
				cancel()
			}
		}(src)
	}
	wg.Wait()

	// 先排空再关库
	r.sink.Close()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Mitigator 暴露缓解引擎,给proxyscan子命令手动驱动轮换
func (r *Runner) Mitigator() *blocker.Mitigator {
	return r.mitigator
}
