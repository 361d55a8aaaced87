package models

import (
	"time"
)

// MatchOdd 单条赔率
// 按 (match_id, market, selection) 复合键唯一,最新观测价格覆盖旧值
type MatchOdd struct {
	Market    string  `json:"market"`
	Selection string  `json:"selection"`
	Odds      float64 `json:"odds"` // 十进制赔率,必须为正数
}

// Match 归一化后的赛事记录
// MatchID 对同一场赛事的重复观测必须稳定(幂等upsert的前提)
type Match struct {
	MatchID    string                 `json:"match_id"`
	Sport      string                 `json:"sport"`
	Tournament string                 `json:"tournament,omitempty"`
	HomeTeam   string                 `json:"home_team"`
	AwayTeam   string                 `json:"away_team"`
	StartTime  *time.Time             `json:"start_time,omitempty"` // 缺失或无法解析时为nil
	IsLive     bool                   `json:"is_live"`
	Odds       []MatchOdd             `json:"odds"`
	Raw        map[string]interface{} `json:"raw"` // 原始来源对象,只读
}
