package blocker

import (
	"strings"

	"github.com/RecoveryAshes/tippmixwatch/internal/models"
)

// blockPageMarker 目标站点封锁页的路径标记
// 重定向Location中出现即判定为按地理IP封锁
const blockPageMarker = "ip-blokk"

// Signal 一次可分类的HTTP/网络观测
// 字段由采集路径尽力填充;CaptchaSuspected与RateLimited为预留输入,
// 当前没有采集路径会设置它们
type Signal struct {
	Status           int    // HTTP状态码
	RedirectLocation string // 3xx响应的Location头
	ContentType      string // 响应Content-Type
	WantJSON         bool   // 该请求本应返回JSON
	CaptchaSuspected bool   // 显式人机验证标记(预留)
	RateLimited      bool   // 失败率/延迟异常标记(预留)
}

// rule 一条分类规则: 命中时返回诊断信息
type rule struct {
	blockType models.BlockType
	match     func(Signal) (evidence string, ok bool)
}

// rules 按固定优先级排列: geo_ip_block > html_block > captcha > rate_limit
// 同一观测命中多条时取第一条
var rules = []rule{
	{models.BlockGeoIP, matchGeoIP},
	{models.BlockHTML, matchHTML},
	{models.BlockCaptcha, matchCaptcha},
	{models.BlockRateLimit, matchRateLimit},
}

// Classify 将观测映射为拦截分类
// 未命中任何规则时ok为false,表示该观测不构成拦截信号
func Classify(sig Signal) (blockType models.BlockType, evidence string, ok bool) {
	for _, r := range rules {
		if ev, hit := r.match(sig); hit {
			return r.blockType, ev, true
		}
	}
	return "", "", false
}

func isRedirectStatus(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// matchGeoIP 重定向目标含封锁页标记
func matchGeoIP(sig Signal) (string, bool) {
	if !isRedirectStatus(sig.Status) {
		return "", false
	}
	if strings.Contains(sig.RedirectLocation, blockPageMarker) {
		return sig.RedirectLocation, true
	}
	return "", false
}

// matchHTML 期望JSON却收到HTML,或错误状态下的HTML插页
func matchHTML(sig Signal) (string, bool) {
	ct := strings.ToLower(sig.ContentType)
	if !strings.Contains(ct, "text/html") {
		return "", false
	}
	if sig.WantJSON || sig.Status >= 300 {
		return sig.ContentType, true
	}
	return "", false
}

// matchCaptcha 显式标记驱动,载荷形状不做自动识别
func matchCaptcha(sig Signal) (string, bool) {
	if sig.CaptchaSuspected {
		return "captcha marker", true
	}
	return "", false
}

// matchRateLimit 预留给失败率/延迟统计信号源
func matchRateLimit(sig Signal) (string, bool) {
	if sig.RateLimited {
		return "elevated failure rate", true
	}
	return "", false
}
