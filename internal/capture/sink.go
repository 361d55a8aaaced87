package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/RecoveryAshes/tippmixwatch/internal/blocker"
	"github.com/RecoveryAshes/tippmixwatch/internal/extract"
	"github.com/RecoveryAshes/tippmixwatch/internal/models"
	"github.com/RecoveryAshes/tippmixwatch/internal/store"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// sinkQueueSize 事件通道容量,写满时发送方阻塞形成背压
const sinkQueueSize = 256

// sinkItem 通道上的一条待落盘项,三选一
type sinkItem struct {
	event   *models.NetworkEvent
	block   *models.BlockEvent
	payload *payloadItem
}

// payloadItem 一段待提取的JSON载荷
type payloadItem struct {
	url     string
	payload map[string]interface{}
}

// Sink 采集事件的汇聚点
// 两条采集路径把类型化事件推到有界通道,由单个写入协程顺序消费,
// 保证每个请求的生命周期阶段按序落盘;geo_ip_block触发异步缓解
type Sink struct {
	ch            chan sinkItem
	store         *store.Store
	mitigator     *blocker.Mitigator
	persistEvents bool // 网络监控开关,关闭时网络事件不落盘

	ctx     context.Context
	wg      sync.WaitGroup
	bg      sync.WaitGroup // 后台缓解任务
	closed  sync.Once
	closing atomic.Bool

	errMu     sync.Mutex
	stickyErr error
}

// NewSink 创建汇聚点,mitigator可为nil(如proxyscan场景)
func NewSink(st *store.Store, mitigator *blocker.Mitigator, persistEvents bool) *Sink {
	return &Sink{
		ch:            make(chan sinkItem, sinkQueueSize),
		store:         st,
		mitigator:     mitigator,
		persistEvents: persistEvents,
	}
}

// Start 启动写入协程
// ctx只用于缓解任务;写入协程由Close经通道关闭退出,
// 确保已入队的写入不会半途被丢弃
func (s *Sink) Start(ctx context.Context) {
	s.ctx = ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for item := range s.ch {
			s.handle(item)
		}
	}()
}

// Close 停止接收并等待队列排空与后台缓解结束
func (s *Sink) Close() {
	s.closed.Do(func() {
		s.closing.Store(true)
		close(s.ch)
	})
	s.wg.Wait()
	s.bg.Wait()
}

// EmitEvent 提交一条网络事件
func (s *Sink) EmitEvent(ev models.NetworkEvent) {
	s.send(sinkItem{event: &ev})
}

// EmitBlock 提交一条拦截事件
func (s *Sink) EmitBlock(ev models.BlockEvent) {
	s.send(sinkItem{block: &ev})
}

// EmitPayload 提交一段JSON载荷
func (s *Sink) EmitPayload(url string, payload map[string]interface{}) {
	s.send(sinkItem{payload: &payloadItem{url: url, payload: payload}})
}

// send 入队,关闭后迟到的CDP事件直接丢弃
func (s *Sink) send(item sinkItem) {
	if s.closing.Load() {
		return
	}
	defer func() { _ = recover() }()
	s.ch <- item
}

// TakeErr 取走并清空粘滞的持久化错误
// 采集周期在收尾处调用:存储不可用对该周期是致命的,交由监督器处理
func (s *Sink) TakeErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.stickyErr
	s.stickyErr = nil
	return err
}

func (s *Sink) recordErr(err error) {
	utils.Error(err, "事件落盘失败")
	s.errMu.Lock()
	if s.stickyErr == nil {
		s.stickyErr = err
	}
	s.errMu.Unlock()
}

// handle 顺序处理一条队列项
func (s *Sink) handle(item sinkItem) {
	switch {
	case item.event != nil:
		if !s.persistEvents {
			return
		}
		if err := s.store.AppendNetworkEvent(*item.event); err != nil {
			s.recordErr(err)
		}

	case item.block != nil:
		if err := s.store.AppendBlockEvent(*item.block); err != nil {
			s.recordErr(err)
		}
		s.maybeMitigate(item.block.BlockType)

	case item.payload != nil:
		s.handlePayload(item.payload)
	}
}

// handlePayload 载荷→提取→落盘
// 每条提取成功的记录各写一行raw(关联match_id);
// 一条都没提出来时整段载荷写一行不关联的raw,审计不缺口
func (s *Sink) handlePayload(p *payloadItem) {
	extracted := 0
	for _, item := range extract.Candidates(p.payload) {
		match, ok := extract.Extract(item)
		if !ok {
			continue
		}
		if err := s.store.UpsertMatch(match); err != nil {
			s.recordErr(err)
			continue
		}
		if err := s.store.AppendRaw(match.MatchID, item); err != nil {
			s.recordErr(err)
		}
		extracted++
	}
	if extracted == 0 {
		if err := s.store.AppendRaw("", p.payload); err != nil {
			s.recordErr(err)
		}
		return
	}
	utils.Infof("📥 提取 %d 场赛事: %s", extracted, p.url)
}

// maybeMitigate 异步触发缓解,单飞去重在Mitigator内部
func (s *Sink) maybeMitigate(blockType models.BlockType) {
	if s.mitigator == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if _, err := s.mitigator.Mitigate(ctx, blockType); err != nil {
			utils.Error(err, "缓解执行失败")
		}
	}()
}
