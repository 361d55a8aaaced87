package blocker

import (
	"context"
	"strings"
	"sync"

	"github.com/RecoveryAshes/tippmixwatch/internal/models"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// Strategy 缓解策略名
type Strategy string

const (
	StrategyRotateProxy  Strategy = "rotate_proxy_or_hu_exit"
	StrategyStealth      Strategy = "stealth_and_retry_with_human_mouse"
	StrategyBackoff      Strategy = "backoff_and_randomize"
	StrategyForceProxy   Strategy = "force_proxy_and_web_context"
	StrategyGenericRetry Strategy = "generic_retry"
)

// StrategyFor 固定的分类→策略映射
// 当前只有geo_ip_block触发自动动作,其余策略仅记录,是明确的扩展点
func StrategyFor(t models.BlockType) Strategy {
	switch t {
	case models.BlockGeoIP:
		return StrategyRotateProxy
	case models.BlockCaptcha:
		return StrategyStealth
	case models.BlockRateLimit:
		return StrategyBackoff
	case models.BlockHTML:
		return StrategyForceProxy
	}
	return StrategyGenericRetry
}

// Describe 策略的人读说明,仅用于日志
func (s Strategy) Describe() string {
	switch s {
	case StrategyRotateProxy:
		return "切换到目标国家出口IP,封锁时轮换代理池"
	case StrategyStealth:
		return "启用隐身与拟人鼠标手势后重试(未自动化)"
	case StrategyBackoff:
		return "指数退避加抖动,改变请求节奏(未自动化)"
	case StrategyForceProxy:
		return "强制经浏览器网络上下文复用会话(未自动化)"
	}
	return "带抖动与头部变化的普通重试(未自动化)"
}

// defaultBatchWidth 每批并发探测的候选数
const defaultBatchWidth = 20

// Mitigator 缓解引擎
// 对geo_ip_block执行代理轮换并提交Active Proxy State;
// 其余分类只记录策略,不改变任何状态
type Mitigator struct {
	sources       []Source
	prober        GeoProber
	state         *ProxyState
	targetCountry string
	batchWidth    int
	candidateCap  int

	// OnProbe 每完成一个候选的探测回调一次(进度显示用),可为nil
	OnProbe func(done, total int)

	mu       sync.Mutex
	inFlight bool
}

// NewMitigator 创建缓解引擎
func NewMitigator(sources []Source, prober GeoProber, state *ProxyState, targetCountry string) *Mitigator {
	if targetCountry == "" {
		targetCountry = "HU"
	}
	return &Mitigator{
		sources:       sources,
		prober:        prober,
		state:         state,
		targetCountry: strings.ToUpper(targetCountry),
		batchWidth:    defaultBatchWidth,
		candidateCap:  maxCandidates,
	}
}

// Configure 覆盖候选上限与批宽,非正值保持默认
func (m *Mitigator) Configure(candidateCap, batchWidth int) {
	if candidateCap > 0 {
		m.candidateCap = candidateCap
	}
	if batchWidth > 0 {
		m.batchWidth = batchWidth
	}
}

// Mitigate 对一个拦截分类执行对应策略
// 返回值为本次激活的代理;空串表示"已尝试缓解,无状态变化",
// 调用方必须按正常无操作结果处理,而非错误
func (m *Mitigator) Mitigate(ctx context.Context, blockType models.BlockType) (string, error) {
	strategy := StrategyFor(blockType)
	utils.Infof("拦截分类 [%s] → 策略 [%s]: %s", blockType, strategy, strategy.Describe())

	if strategy != StrategyRotateProxy {
		return "", nil
	}

	// 单飞: 两条采集路径可能同时报告封锁,轮换只跑一趟
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		utils.Debug("代理轮换已在进行中,跳过本次触发")
		return "", nil
	}
	m.inFlight = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	return m.RotateProxy(ctx)
}

// RotateProxy 代理轮换工作流
// 合并来源→去重封顶→按批并发探测→命中目标国家即提交并停止扫描
func (m *Mitigator) RotateProxy(ctx context.Context) (string, error) {
	candidates := CollectCandidates(ctx, m.sources, m.candidateCap)
	if len(candidates) == 0 {
		utils.Warn("没有可用的候选代理")
		return "", nil
	}
	utils.Infof("开始探测 %d 个候选代理 (目标国家: %s, 批宽: %d)",
		len(candidates), m.targetCountry, m.batchWidth)

	probed := 0
	for start := 0; start < len(candidates); start += m.batchWidth {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		end := start + m.batchWidth
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		hits := make(chan Candidate, len(batch))
		var wg sync.WaitGroup
		for _, cand := range batch {
			wg.Add(1)
			go func(c Candidate) {
				defer wg.Done()
				cc, err := m.prober.Country(ctx, c.URL)
				if err != nil {
					utils.Debugf("候选探测失败 [%s]: %v", c.URL, err)
					return
				}
				if cc == m.targetCountry {
					hits <- c
				}
			}(cand)
		}
		wg.Wait()
		close(hits)

		probed += len(batch)
		if m.OnProbe != nil {
			m.OnProbe(probed, len(candidates))
		}

		// 批内首个通过者胜出,后续批次不再启动
		if winner, ok := <-hits; ok {
			if err := m.state.Commit(winner.URL); err != nil {
				return "", err
			}
			utils.Infof("✅ 已激活代理 [%s] (来源: %s, 已探测 %d/%d)",
				winner.URL, winner.Source, probed, len(candidates))
			return winner.URL, nil
		}
	}

	utils.Warnf("全部 %d 个候选无一通过,保持既有代理状态", len(candidates))
	return "", nil
}
