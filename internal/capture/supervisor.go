package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	// backoffWindow 连续失败的累计退避上限,耗尽后错误上抛
	backoffWindow = 300 * time.Second
)

// Source 一条受监督的采集路径
type Source interface {
	Name() string
	// RunCycle 执行一轮采集,返回错误表示本轮失败
	RunCycle(ctx context.Context) error
}

// Supervisor 采集路径的监督器
// 周期成功则按固定间隔继续;失败或panic则指数退避重启(1s起,封顶60s),
// 累计退避超过窗口后放弃并上抛最后一次错误
type Supervisor struct {
	name     string
	interval time.Duration

	initialBackoff time.Duration
	maxBackoff     time.Duration
	window         time.Duration
}

func NewSupervisor(name string, interval time.Duration) *Supervisor {
	return &Supervisor{
		name:           name,
		interval:       interval,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		window:         backoffWindow,
	}
}

// Run 循环驱动cycle直到ctx取消或退避窗口耗尽
func (s *Supervisor) Run(ctx context.Context, cycle func(ctx context.Context) error) error {
	backoff := s.initialBackoff
	var spent time.Duration

	for {
		err := runCycle(ctx, cycle)
		if ctx.Err() != nil {
			utils.Infof("🛑 %s 采集停止", s.name)
			return nil
		}

		if err != nil {
			spent += backoff
			if spent > s.window {
				return fmt.Errorf("%s 重试窗口耗尽: %w", s.name, err)
			}
			utils.Warnf("⚠️ %s 本轮失败,%s后重试: %v", s.name, backoff, err)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}

		backoff = s.initialBackoff
		spent = 0
		if !sleepCtx(ctx, s.interval) {
			utils.Infof("🛑 %s 采集停止", s.name)
			return nil
		}
	}
}

// runCycle 执行一轮并把panic转成普通错误,避免单轮崩溃拖垮进程
func runCycle(ctx context.Context, cycle func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("采集周期panic: %v", r)
		}
	}()
	return cycle(ctx)
}

// sleepCtx 可取消的休眠,被取消时返回false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
