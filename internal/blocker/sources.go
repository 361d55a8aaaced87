package blocker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// maxCandidates 合并去重后候选集的上限
const maxCandidates = 200

// Candidate 待验证的候选代理
type Candidate struct {
	URL    string // scheme://host:port
	Source string // 来源名,仅用于诊断
}

// Source 候选代理来源
// 每个来源返回一批 scheme://host:port;单个来源失败不影响其他来源
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]string, error)
}

// HTTPListSource 纯文本列表端点,每行一个代理
// scheme 为该来源的默认协议: 行内未带协议的条目补全为 scheme://
type HTTPListSource struct {
	name   string
	url    string
	scheme string
	client *http.Client
}

// NewHTTPListSource 创建文本列表来源
// scheme为空时默认http(来源标记为socks4/socks5的列表传对应scheme)
func NewHTTPListSource(name, listURL, scheme string) *HTTPListSource {
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPListSource{
		name:   name,
		url:    listURL,
		scheme: scheme,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// Name 实现Source接口
func (s *HTTPListSource) Name() string { return s.name }

// Fetch 拉取并归一化代理列表
func (s *HTTPListSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("构造列表请求失败 [%s]: %w", s.name, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("拉取代理列表失败 [%s]: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("拉取代理列表失败 [%s]: HTTP %d", s.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("读取代理列表失败 [%s]: %w", s.name, err)
	}

	var out []string
	for _, line := range strings.Split(string(body), "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "://") {
			entry = s.scheme + "://" + entry
		}
		out = append(out, entry)
	}
	return out, nil
}

// DefaultSources 默认候选来源组合
// 通用HTTP列表 + 按目标国家过滤的各协议列表
func DefaultSources(country string) []Source {
	cc := strings.ToLower(country)
	return []Source{
		NewHTTPListSource("thespeedx-http",
			"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt", "http"),
		NewHTTPListSource("proxyscrape-http",
			"https://api.proxyscrape.com/?request=getproxies&proxytype=http&timeout=6000&country="+strings.ToUpper(cc)+"&anonymity=Elite", "http"),
		NewHTTPListSource("proxyscrape-socks4",
			"https://api.proxyscrape.com/?request=getproxies&proxytype=socks4&timeout=8000&country="+strings.ToUpper(cc)+"&anonymity=Elite", "socks4"),
		NewHTTPListSource("proxyscrape-socks5",
			"https://api.proxyscrape.com/?request=getproxies&proxytype=socks5&timeout=8000&country="+strings.ToUpper(cc)+"&anonymity=Elite", "socks5"),
	}
}

// CollectCandidates 合并全部来源,按首见顺序去重并封顶
// 单个来源失败只记日志,不影响整体
func CollectCandidates(ctx context.Context, sources []Source, limit int) []Candidate {
	if limit <= 0 {
		limit = maxCandidates
	}
	seen := make(map[string]struct{})
	var out []Candidate
	for _, src := range sources {
		entries, err := src.Fetch(ctx)
		if err != nil {
			utils.Warnf("候选来源失败 [%s]: %v", src.Name(), err)
			continue
		}
		for _, entry := range entries {
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, Candidate{URL: entry, Source: src.Name()})
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}
