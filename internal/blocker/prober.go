package blocker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"h12.io/socks"
)

// defaultWhoamiEndpoint 出口地理探测端点,返回 {"cc": "HU", ...}
const defaultWhoamiEndpoint = "https://api.myip.com"

// probeUserAgent 探测请求使用与采集路径一致的移动端UA
const probeUserAgent = "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36"

// GeoProber 判定一个候选代理的出口国家
type GeoProber interface {
	Country(ctx context.Context, proxyURL string) (string, error)
}

// WhoamiProber 通过候选代理请求who-am-I端点并读回国家代码
type WhoamiProber struct {
	Endpoint string
	Timeout  time.Duration
}

// NewWhoamiProber 创建默认探测器
func NewWhoamiProber() *WhoamiProber {
	return &WhoamiProber{
		Endpoint: defaultWhoamiEndpoint,
		Timeout:  6 * time.Second,
	}
}

// Country 经候选代理发起短超时请求,返回报告的国家代码
// 任何失败(连不上、非200、解析失败)都返回错误,由调用方按"未通过"处理
func (p *WhoamiProber) Country(ctx context.Context, proxyURL string) (string, error) {
	transport, err := TransportFor(proxyURL, p.Timeout)
	if err != nil {
		return "", err
	}
	client := &http.Client{Transport: transport, Timeout: p.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("构造探测请求失败: %w", err)
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("探测请求失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("探测端点返回 HTTP %d", resp.StatusCode)
	}

	var payload struct {
		CC      string `json:"cc"`
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("解析探测响应失败: %w", err)
	}
	cc := payload.CC
	if cc == "" {
		cc = payload.Country
	}
	return strings.ToUpper(strings.TrimSpace(cc)), nil
}

// TransportFor 按候选代理的协议构建HTTP传输
// http/https 走标准代理传输;socks4/socks4a/socks5 走socks拨号器
// (net/http原生不支持socks4)
func TransportFor(proxyURL string, timeout time.Duration) (*http.Transport, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("无效的代理地址 [%s]: %w", proxyURL, err)
	}

	tr := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives: true,
	}

	switch strings.ToLower(parsed.Scheme) {
	case "socks4", "socks4a", "socks5":
		dial := socks.Dial(fmt.Sprintf("%s://%s?timeout=%s", parsed.Scheme, parsed.Host, timeout))
		tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		}
	case "http", "https":
		tr.Proxy = http.ProxyURL(parsed)
	default:
		return nil, fmt.Errorf("不支持的代理协议 [%s]", parsed.Scheme)
	}
	return tr, nil
}
