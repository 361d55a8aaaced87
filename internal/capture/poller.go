package capture

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/tippmixwatch/internal/blocker"
	"github.com/RecoveryAshes/tippmixwatch/internal/models"
	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// PollerConfig API轮询路径配置
type PollerConfig struct {
	BaseURL string
	Paths   []string
	// Headers 每个请求附带的浏览器头部(含User-Agent)
	Headers map[string]string
	Timeout time.Duration
}

// APIPoller 直连API轮询路径
// 不经浏览器直接打后端接口,与浏览器路径互为冗余;
// HTTP客户端不跟随重定向,302直接交给分类器判定
type APIPoller struct {
	cfg   PollerConfig
	state *blocker.ProxyState
	sink  *Sink
}

func NewAPIPoller(cfg PollerConfig, state *blocker.ProxyState, sink *Sink) *APIPoller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &APIPoller{cfg: cfg, state: state, sink: sink}
}

func (p *APIPoller) Name() string { return "api" }

// RunCycle 执行一轮API轮询,逐个端点串行访问
func (p *APIPoller) RunCycle(ctx context.Context) error {
	sessionID := uuid.New().String()

	c, err := p.newCollector(ctx, sessionID)
	if err != nil {
		return err
	}

	for _, path := range p.cfg.Paths {
		endpoint := p.cfg.BaseURL + path
		if err := c.Visit(endpoint); err != nil {
			utils.Debugf("端点访问失败 [%s]: %v", endpoint, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	c.Wait()

	return p.sink.TakeErr()
}

// newCollector 按当前代理状态构建一次性collector
// 代理在构建时绑定,轮换后的下一轮自然拿到新代理
func (p *APIPoller) newCollector(ctx context.Context, sessionID string) (*colly.Collector, error) {
	proxy := p.state.Active()
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	if proxy != "" {
		pt, err := blocker.TransportFor(proxy, p.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("构建代理传输失败: %w", err)
		}
		transport = pt
		utils.Infof("🌐 API轮询启用代理: %s", proxy)
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   p.cfg.Timeout,
		// 不跟随重定向,让302响应原样进入分类器
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		// 非2xx响应也要进OnResponse,拦截判定需要看到它们
		colly.ParseHTTPErrorResponse(),
	)
	c.SetClient(httpClient)
	c.SetRequestTimeout(p.cfg.Timeout)

	c.OnRequest(func(r *colly.Request) {
		for name, value := range p.cfg.Headers {
			r.Headers.Set(name, value)
		}
		r.Ctx.Put("start", time.Now().Format(time.RFC3339Nano))
		p.sink.EmitEvent(models.NetworkEvent{
			SessionID:  sessionID,
			Phase:      models.PhaseRequest,
			URL:        r.URL.String(),
			Method:     r.Method,
			OccurredAt: time.Now(),
		})
	})

	c.OnResponse(func(r *colly.Response) {
		p.handleResponse(sessionID, r)
	})

	c.OnError(func(r *colly.Response, err error) {
		url := ""
		if r != nil && r.Request != nil {
			url = r.Request.URL.String()
		}
		utils.Warnf("API请求失败 [%s]: %v", url, err)
		p.sink.EmitEvent(models.NetworkEvent{
			SessionID:  sessionID,
			Phase:      models.PhaseAPIError,
			URL:        url,
			Error:      err.Error(),
			OccurredAt: time.Now(),
		})
	})

	return c, nil
}

// handleResponse 单端点响应的落盘、拦截判定与载荷提取
func (p *APIPoller) handleResponse(sessionID string, r *colly.Response) {
	requestURL := r.Request.URL.String()
	contentType := r.Headers.Get("Content-Type")
	location := r.Headers.Get("Location")

	// 解压响应体(如果有压缩)
	body := r.Body
	if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
		decompressed, err := decompressBody(encoding, r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", requestURL, encoding, err)
		} else {
			body = decompressed
		}
	}

	p.sink.EmitEvent(models.NetworkEvent{
		SessionID:  sessionID,
		Phase:      models.PhaseAPIResponse,
		URL:        requestURL,
		Status:     r.StatusCode,
		Headers:    serializeHeaders(map[string]string{"Content-Type": contentType, "Location": location}),
		BodyBytes:  int64(len(body)),
		DurationMS: durationSince(r.Ctx.Get("start")),
		OccurredAt: time.Now(),
	})

	sig := blocker.Signal{
		Status:           r.StatusCode,
		RedirectLocation: location,
		ContentType:      contentType,
		WantJSON:         true,
	}
	if blockType, evidence, ok := blocker.Classify(sig); ok {
		// HTML拦截页的话把页面标题也带上,便于事后排查
		if title := htmlTitle(body); title != "" {
			evidence = evidence + "; title=" + title
		}
		utils.Warnf("🚫 API路径检测到拦截: %s (%s)", blockType, evidence)
		p.sink.EmitBlock(models.BlockEvent{
			SessionID:  sessionID,
			Source:     models.BlockSourceAPI,
			BlockType:  blockType,
			URL:        requestURL,
			Status:     r.StatusCode,
			Evidence:   evidence,
			ProxyUsed:  p.state.Active(),
			UserAgent:  p.cfg.Headers["User-Agent"],
			OccurredAt: time.Now(),
		})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.Debugf("非JSON响应跳过 [%s]: %v", requestURL, err)
		return
	}
	p.sink.EmitPayload(requestURL, payload)
}

// decompressBody 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "", "identity":
		return body, nil
	default:
		return nil, fmt.Errorf("未知的压缩编码: %s", encoding)
	}
}

// htmlTitle 提取HTML文档标题,解析失败返回空串
func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func durationSince(started string) int64 {
	if started == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return 0
	}
	return time.Since(t).Milliseconds()
}
