package blocker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestHTTPListSource_SchemeDefaulting 测试裸host:port行补全协议
func TestHTTPListSource_SchemeDefaulting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1.2.3.4:8080\n\nsocks5://5.6.7.8:1080\n  9.9.9.9:3128  \n"))
	}))
	defer srv.Close()

	src := NewHTTPListSource("test", srv.URL, "socks4")
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("拉取失败: %v", err)
	}

	want := []string{
		"socks4://1.2.3.4:8080",  // 裸条目补全来源协议
		"socks5://5.6.7.8:1080",  // 已带协议原样保留
		"socks4://9.9.9.9:3128",  // 去空白后补全
	}
	if len(got) != len(want) {
		t.Fatalf("条目数 = %d, 期望 %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("条目[%d] = %q, 期望 %q", i, got[i], want[i])
		}
	}
}

// TestHTTPListSource_HTTPError 测试非200响应报错
func TestHTTPListSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPListSource("test", srv.URL, "")
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("非200响应应该报错")
	}
}

// TestDefaultSources_CoverAllSchemes 测试默认来源覆盖三种协议
func TestDefaultSources_CoverAllSchemes(t *testing.T) {
	sources := DefaultSources("HU")
	if len(sources) != 4 {
		t.Fatalf("默认来源数 = %d, 期望 4", len(sources))
	}
	names := map[string]bool{}
	for _, s := range sources {
		names[s.Name()] = true
	}
	for _, want := range []string{"thespeedx-http", "proxyscrape-http", "proxyscrape-socks4", "proxyscrape-socks5"} {
		if !names[want] {
			t.Errorf("缺少默认来源: %s", want)
		}
	}
}
