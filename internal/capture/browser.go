package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/RecoveryAshes/tippmixwatch/internal/blocker"
	"github.com/RecoveryAshes/tippmixwatch/internal/models"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// apiURLPatterns 判定响应是否为赛事API流量的URL特征
var apiURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/api/`),
	regexp.MustCompile(`/sport`),
	regexp.MustCompile(`/mobile/`),
}

// cookieConsentSelectors 常见同意弹窗按钮,逐个尝试,点不到就算了
var cookieConsentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"button[aria-label='Elfogadom']",
	".cookie-accept",
	"button.accept-all",
}

func isAPIURL(url string) bool {
	for _, p := range apiURLPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// BrowserConfig 浏览器采集路径配置
type BrowserConfig struct {
	TargetURL string
	UserAgent string
	Headless  bool
	// SettleTime 页面加载后等待XHR完成的时间
	SettleTime time.Duration
}

// BrowserCapture 无头浏览器采集路径
// 每轮启动一个全新的浏览器实例(干净的指纹与代理绑定),
// 通过CDP被动监听整站网络流量,周期结束无条件拆除
type BrowserCapture struct {
	cfg   BrowserConfig
	state *blocker.ProxyState
	sink  *Sink
	gate  *ResourceGate
}

func NewBrowserCapture(cfg BrowserConfig, state *blocker.ProxyState, sink *Sink, gate *ResourceGate) *BrowserCapture {
	return &BrowserCapture{cfg: cfg, state: state, sink: sink, gate: gate}
}

func (b *BrowserCapture) Name() string { return "browser" }

// RunCycle 执行一轮浏览器采集
func (b *BrowserCapture) RunCycle(ctx context.Context) error {
	if ok, reason := b.gate.CanLaunchBrowser(); !ok {
		utils.Warnf("⚠️ 内存不足跳过本轮浏览器采集: %s", reason)
		return nil
	}

	sessionID := uuid.New().String()
	proxy := b.state.Active()

	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("lang", "hu-HU")
	if proxy != "" {
		l = l.Proxy(proxy)
		utils.Infof("🌐 浏览器启用代理: %s", proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("连接浏览器失败: %w", err)
	}
	// 无论本轮成败浏览器都必须拆除,防止僵尸Chromium堆积
	defer func() {
		browser.MustClose()
		l.Cleanup()
		utils.Debugf("浏览器已关闭: session=%s", sessionID)
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("创建页面失败: %w", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{UserAgent: b.cfg.UserAgent}).Call(page); err != nil {
		return fmt.Errorf("设置UserAgent失败: %w", err)
	}

	b.watchNetwork(page, sessionID)

	utils.Infof("🔍 浏览器采集开始: %s", b.cfg.TargetURL)
	if err := page.Timeout(60 * time.Second).Navigate(b.cfg.TargetURL); err != nil {
		return fmt.Errorf("导航失败: %w", err)
	}
	// SPA场景下Load事件不代表数据就绪,失败只降级不终止
	if err := page.Timeout(30 * time.Second).WaitLoad(); err != nil {
		utils.Warnf("页面加载等待超时: %v", err)
	}

	b.dismissCookieConsent(page)

	// 静置等XHR,滚动一下触发懒加载,再补一段
	if !sleepCtx(ctx, b.cfg.SettleTime) {
		return nil
	}
	if err := page.Mouse.Scroll(0, 2000, 5); err != nil {
		utils.Debugf("页面滚动失败: %v", err)
	}
	if !sleepCtx(ctx, b.cfg.SettleTime/2) {
		return nil
	}

	return b.sink.TakeErr()
}

// watchNetwork 注册CDP网络事件监听
// 监听协程随page的context(即浏览器关闭)退出
func (b *BrowserCapture) watchNetwork(page *rod.Page, sessionID string) {
	var mu sync.Mutex
	type reqInfo struct {
		url     string
		started time.Time
	}
	requests := make(map[proto.NetworkRequestID]reqInfo)
	wsURLs := make(map[proto.NetworkRequestID]string)

	go page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			mu.Lock()
			requests[e.RequestID] = reqInfo{url: e.Request.URL, started: time.Now()}
			mu.Unlock()
			b.sink.EmitEvent(models.NetworkEvent{
				SessionID:  sessionID,
				Phase:      models.PhaseRequest,
				URL:        e.Request.URL,
				Method:     e.Request.Method,
				OccurredAt: time.Now(),
			})
		},
		func(e *proto.NetworkResponseReceived) {
			resp := e.Response
			b.sink.EmitEvent(models.NetworkEvent{
				SessionID:    sessionID,
				Phase:        models.PhaseResponse,
				URL:          resp.URL,
				Status:       resp.Status,
				ResourceType: string(e.Type),
				Headers:      serializeHeaders(flattenHeaders(resp.Headers)),
				OccurredAt:   time.Now(),
			})
			b.inspectResponse(page, sessionID, e)
		},
		func(e *proto.NetworkLoadingFinished) {
			mu.Lock()
			info, ok := requests[e.RequestID]
			delete(requests, e.RequestID)
			mu.Unlock()
			ev := models.NetworkEvent{
				SessionID:  sessionID,
				Phase:      models.PhaseFinished,
				BodyBytes:  int64(e.EncodedDataLength),
				OccurredAt: time.Now(),
			}
			if ok {
				ev.URL = info.url
				ev.DurationMS = time.Since(info.started).Milliseconds()
			}
			b.sink.EmitEvent(ev)
		},
		func(e *proto.NetworkLoadingFailed) {
			mu.Lock()
			info, ok := requests[e.RequestID]
			delete(requests, e.RequestID)
			mu.Unlock()
			ev := models.NetworkEvent{
				SessionID:  sessionID,
				Phase:      models.PhaseFailed,
				Error:      e.ErrorText,
				OccurredAt: time.Now(),
			}
			if ok {
				ev.URL = info.url
				ev.DurationMS = time.Since(info.started).Milliseconds()
			}
			b.sink.EmitEvent(ev)
		},
		func(e *proto.NetworkWebSocketCreated) {
			mu.Lock()
			wsURLs[e.RequestID] = e.URL
			mu.Unlock()
			b.sink.EmitEvent(models.NetworkEvent{
				SessionID:  sessionID,
				Phase:      models.PhaseWebSocketOpen,
				URL:        e.URL,
				OccurredAt: time.Now(),
			})
		},
		func(e *proto.NetworkWebSocketClosed) {
			mu.Lock()
			url := wsURLs[e.RequestID]
			delete(wsURLs, e.RequestID)
			mu.Unlock()
			b.sink.EmitEvent(models.NetworkEvent{
				SessionID:  sessionID,
				Phase:      models.PhaseWebSocketClose,
				URL:        url,
				OccurredAt: time.Now(),
			})
		},
	)()
}

// inspectResponse 对单个响应做拦截判定与赛事载荷提取
func (b *BrowserCapture) inspectResponse(page *rod.Page, sessionID string, e *proto.NetworkResponseReceived) {
	resp := e.Response
	headers := flattenHeaders(resp.Headers)

	sig := blocker.Signal{
		Status:           resp.Status,
		RedirectLocation: headerValue(headers, "Location"),
		ContentType:      resp.MIMEType,
		WantJSON:         isAPIURL(resp.URL),
	}
	if blockType, evidence, ok := blocker.Classify(sig); ok {
		utils.Warnf("🚫 浏览器路径检测到拦截: %s (%s)", blockType, evidence)
		b.sink.EmitBlock(models.BlockEvent{
			SessionID:  sessionID,
			Source:     models.BlockSourceWeb,
			BlockType:  blockType,
			URL:        resp.URL,
			Status:     resp.Status,
			Evidence:   evidence,
			ProxyUsed:  b.state.Active(),
			UserAgent:  b.cfg.UserAgent,
			OccurredAt: time.Now(),
		})
		return
	}

	if !isAPIURL(resp.URL) || !strings.Contains(resp.MIMEType, "json") {
		return
	}

	body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
	if err != nil {
		utils.Debugf("获取响应体失败 [%s]: %v", resp.URL, err)
		return
	}
	content := []byte(body.Body)
	if body.Base64Encoded {
		content, err = base64.StdEncoding.DecodeString(body.Body)
		if err != nil {
			utils.Warnf("解码Base64失败 [%s]: %v", resp.URL, err)
			return
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(content, &payload); err != nil {
		utils.Debugf("JSON解析失败 [%s]: %v", resp.URL, err)
		return
	}
	b.sink.EmitPayload(resp.URL, payload)
}

// dismissCookieConsent 尽力点掉同意弹窗,全部失败也不影响采集
func (b *BrowserCapture) dismissCookieConsent(page *rod.Page) {
	for _, sel := range cookieConsentSelectors {
		el, err := page.Timeout(3 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			utils.Debugf("点击同意按钮失败 [%s]: %v", sel, err)
			continue
		}
		utils.Debugf("已关闭同意弹窗: %s", sel)
		return
	}
}

// flattenHeaders CDP头部转普通map,多值只留首个
func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		out[name] = value.Str()
	}
	return out
}

// headerValue 大小写不敏感的头部取值,CDP返回的头部名大小写不定
func headerValue(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// serializeHeaders 头部落盘用的JSON序列化
func serializeHeaders(h map[string]string) string {
	data, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return string(data)
}
