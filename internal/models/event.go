package models

import "time"

// EventPhase 网络事件生命周期阶段
type EventPhase string

const (
	PhaseRequest        EventPhase = "request"         // 请求已发出
	PhaseResponse       EventPhase = "response"        // 收到响应头
	PhaseFailed         EventPhase = "failed"          // 请求失败
	PhaseFinished       EventPhase = "finished"        // 请求完成(含字节数)
	PhaseWebSocketOpen  EventPhase = "websocket_open"  // WebSocket建立
	PhaseWebSocketClose EventPhase = "websocket_close" // WebSocket关闭
	PhaseAPIResponse    EventPhase = "api_response"    // 轮询器收到响应
	PhaseAPIError       EventPhase = "api_error"       // 轮询器请求失败
)

// NetworkEvent 一次网络生命周期观测,追加写入,不更新不删除
type NetworkEvent struct {
	SessionID    string     `json:"session_id"` // 采集周期ID,便于按会话回放
	Phase        EventPhase `json:"phase"`
	URL          string     `json:"url"`
	Method       string     `json:"method,omitempty"`
	Status       int        `json:"status,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	Headers      string     `json:"headers,omitempty"` // 序列化后的响应头
	BodyBytes    int64      `json:"body_bytes,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	Error        string     `json:"error,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// BlockSource 拦截信号的来源路径
type BlockSource string

const (
	BlockSourceWeb BlockSource = "web" // 浏览器采集路径
	BlockSourceAPI BlockSource = "api" // API轮询路径
)

// BlockType 拦截信号分类
type BlockType string

const (
	BlockGeoIP     BlockType = "geo_ip_block" // 按地理IP封锁(重定向到封锁页)
	BlockHTML      BlockType = "html_block"   // 期望JSON却返回HTML
	BlockCaptcha   BlockType = "captcha"      // 人机验证(预留,当前不自动识别)
	BlockRateLimit BlockType = "rate_limit"   // 频率限制(预留)
)

// BlockEvent 一次被拦截的观测,追加写入
type BlockEvent struct {
	SessionID  string      `json:"session_id"`
	Source     BlockSource `json:"source"`
	URL        string      `json:"url"`
	Status     int         `json:"status,omitempty"`
	BlockType  BlockType   `json:"block_type"`
	Evidence   string      `json:"evidence,omitempty"` // 诊断信息,如重定向目标或Content-Type
	ProxyUsed  string      `json:"proxy_used,omitempty"`
	UserAgent  string      `json:"user_agent,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// RawPayload 观测到的一段JSON原文,审计日志
// MatchID 可为空:载荷可能未能提取出任何赛事
type RawPayload struct {
	MatchID    string                 `json:"match_id,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	ReceivedAt time.Time              `json:"received_at"`
}
