package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/tippmixwatch/internal/models"
)

// containerKeys 候选列表的容器键,按优先级探测
var containerKeys = []string{"events", "matches", "data", "items", "list", "fixtures"}

// idKeys 显式赛事ID字段,按优先级探测
var idKeys = []string{"id", "matchId", "eventId", "fixtureId"}

// homeKeys / awayKeys 主客队字段的探测顺序
// 取值可能是 {name: "..."} 对象,也可能是纯字符串
var (
	homeKeys = []string{"homeTeam", "home", "team1"}
	awayKeys = []string{"awayTeam", "away", "team2"}
)

// startKeys 开赛时间字段的探测顺序
var startKeys = []string{"start", "startTime", "kickoff", "date"}

// tournamentKeys 联赛/杯赛名称字段的探测顺序
var tournamentKeys = []string{"tournament", "league", "competition"}

// liveKeys 滚球标记字段的探测顺序
var liveKeys = []string{"live", "inplay", "isLive"}

// esportKeywords 目标垂直领域关键字,大小写不敏感
// 只要sport/联赛/显示名称中命中任意一个即保留
var esportKeywords = []string{
	"e-sport", "esport", "efootball", "e-football", "e foci", "fifa", "e-foot", "virtual football",
}

// epochMillisThreshold 大于该值的数字时间戳按毫秒处理,否则按秒
const epochMillisThreshold = 10_000_000_000

// startLayouts 文本日期的解析布局表,按顺序尝试
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02 15:04",
	"2006.01.02",
}

// Candidates 从一段异构JSON载荷中定位候选记录列表
// 按containerKeys顺序探测已知容器键;全部落空时若根对象本身
// 形似一条记录,则将其作为唯一候选返回
func Candidates(payload map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, key := range containerKeys {
		list, ok := payload[key].([]interface{})
		if !ok {
			continue
		}
		for _, v := range list {
			if item, ok := v.(map[string]interface{}); ok {
				out = append(out, item)
			}
		}
	}
	if len(out) == 0 && payload != nil {
		out = append(out, payload)
	}
	return out
}

// Extract 将一条候选记录归一化为Match
// 任何形状异常只导致该条记录被拒绝(返回false),绝不向外抛出
func Extract(item map[string]interface{}) (*models.Match, bool) {
	if item == nil {
		return nil, false
	}

	home := resolveTeam(item, homeKeys)
	away := resolveTeam(item, awayKeys)
	displayName := strings.TrimSpace(asString(item["name"]))

	// 回退: 从 "Home - Away" 形式的显示名称按第一个 " - " 切分
	if (home == "" || away == "") && displayName != "" {
		if idx := strings.Index(displayName, " - "); idx > 0 {
			home = strings.TrimSpace(displayName[:idx])
			away = strings.TrimSpace(displayName[idx+3:])
		}
	}
	if home == "" || away == "" {
		return nil, false
	}

	// 领域过滤: 非电竞足球记录在赔率解析前拒绝
	if !isEsportFootball(item) {
		return nil, false
	}

	startRaw := firstValue(item, startKeys)
	matchID := resolveMatchID(item, home, away, startRaw)

	m := &models.Match{
		MatchID:    matchID,
		Sport:      resolveSport(item),
		Tournament: strings.TrimSpace(asString(firstValue(item, tournamentKeys))),
		HomeTeam:   home,
		AwayTeam:   away,
		StartTime:  parseStart(startRaw),
		IsLive:     resolveLive(item),
		Odds:       parseOdds(item),
		Raw:        item,
	}
	return m, true
}

// resolveMatchID 计算稳定的赛事ID
// 优先显式ID字段;否则由 home-away-start 合成,保证同一场赛事的
// 重复观测收敛到同一行
func resolveMatchID(item map[string]interface{}, home, away string, startRaw interface{}) string {
	for _, key := range idKeys {
		if v, ok := item[key]; ok {
			if s := asIDString(v); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("%s-%s-%s", home, away, asIDString(startRaw))
}

// resolveTeam 按规则表顺序解析队名
func resolveTeam(item map[string]interface{}, keys []string) string {
	for _, key := range keys {
		v, ok := item[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case map[string]interface{}:
			if name := strings.TrimSpace(asString(t["name"])); name != "" {
				return name
			}
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		}
	}
	return ""
}

// resolveSport 解析运动名称,缺失时默认 E-sport
func resolveSport(item map[string]interface{}) string {
	for _, key := range []string{"sport", "sportName"} {
		if s := strings.TrimSpace(asString(item[key])); s != "" {
			return s
		}
	}
	return "E-sport"
}

// resolveLive 任一滚球标记为真即视为滚球
func resolveLive(item map[string]interface{}) bool {
	for _, key := range liveKeys {
		if truthy(item[key]) {
			return true
		}
	}
	return false
}

// isEsportFootball 领域过滤: 在运动名/联赛名/显示名的合并文本中
// 大小写不敏感地扫描关键字表
func isEsportFootball(item map[string]interface{}) bool {
	parts := []string{
		asString(item["sport"]),
		asString(item["sportName"]),
		asString(item["league"]),
		asString(item["tournament"]),
		asString(item["name"]),
	}
	combined := strings.ToLower(strings.Join(parts, " "))
	for _, kw := range esportKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

// parseOdds 解析赔率列表
// 市场容器markets|odds,选项容器selections|outcomes;
// 价格无法转成数字时静默丢弃该条选项,不影响整场赛事
func parseOdds(item map[string]interface{}) []models.MatchOdd {
	var out []models.MatchOdd
	markets, ok := firstValue(item, []string{"markets", "odds"}).([]interface{})
	if !ok {
		return out
	}
	for _, mv := range markets {
		market, ok := mv.(map[string]interface{})
		if !ok {
			continue
		}
		marketName := strings.TrimSpace(asString(firstValue(market, []string{"name", "market"})))
		selections, ok := firstValue(market, []string{"selections", "outcomes"}).([]interface{})
		if !ok {
			continue
		}
		for _, sv := range selections {
			sel, ok := sv.(map[string]interface{})
			if !ok {
				continue
			}
			selName := strings.TrimSpace(asString(firstValue(sel, []string{"name", "selection", "outcome"})))
			price, ok := asFloat(firstValue(sel, []string{"odds", "price", "decimal", "value"}))
			if !ok || price <= 0 {
				continue
			}
			out = append(out, models.MatchOdd{
				Market:    marketName,
				Selection: selName,
				Odds:      price,
			})
		}
	}
	return out
}

// parseStart 解析开赛时间
// 数字按epoch处理(大于10^10视为毫秒),字符串按布局表逐个尝试;
// 解析失败返回nil而非错误
func parseStart(v interface{}) *time.Time {
	switch t := v.(type) {
	case float64:
		return epochToTime(t)
	case int64:
		return epochToTime(float64(t))
	case int:
		return epochToTime(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		// 纯数字字符串也按epoch处理
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(n)
		}
		for _, layout := range startLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return &ts
			}
		}
	}
	return nil
}

func epochToTime(n float64) *time.Time {
	if n <= 0 {
		return nil
	}
	var ts time.Time
	if n > epochMillisThreshold {
		ts = time.UnixMilli(int64(n)).UTC()
	} else {
		ts = time.Unix(int64(n), 0).UTC()
	}
	return &ts
}

// firstValue 返回规则表中第一个存在且非nil的字段值
func firstValue(item map[string]interface{}, keys []string) interface{} {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// asString 宽松地取字符串值,其余类型返回空串
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// asIDString ID字段的取值: 字符串原样,数字去掉浮点噪音
func asIDString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// asFloat 宽松地取数字值: float64或数字字符串("1.85")均可
func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// truthy JSON布尔语义: true、非零数字、"true"/"1"
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "1"
	}
	return false
}
