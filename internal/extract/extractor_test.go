package extract

import (
	"encoding/json"
	"testing"
	"time"
)

// decode 模拟真实流量: 所有测试载荷都经过一次JSON反序列化
func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("测试载荷解析失败: %v", err)
	}
	return payload
}

// TestCandidates_ContainerShapes 测试不同容器形状的候选定位
func TestCandidates_ContainerShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
	}{
		{"events容器", `{"events": [{"a": 1}, {"b": 2}]}`, 2},
		{"matches容器", `{"matches": [{"a": 1}]}`, 1},
		{"data容器", `{"data": [{"a": 1}, {"b": 2}, {"c": 3}]}`, 3},
		{"fixtures容器", `{"fixtures": [{"a": 1}]}`, 1},
		{"多个容器键并存", `{"events": [{"a": 1}], "matches": [{"b": 2}]}`, 2},
		{"容器内非对象元素被跳过", `{"events": [{"a": 1}, "junk", 42]}`, 1},
		{"无容器时根对象兜底", `{"id": "x", "name": "A - B"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(decode(t, tt.payload))
			if len(got) != tt.want {
				t.Errorf("候选数量 = %d, 期望 %d", len(got), tt.want)
			}
		})
	}
}

// TestExtract_FullRecord 测试完整记录的归一化
func TestExtract_FullRecord(t *testing.T) {
	item := decode(t, `{
		"id": 42,
		"sport": "E-sport labdarúgás",
		"tournament": "GT Leagues",
		"homeTeam": {"name": "Arsenal (Kodiak)"},
		"awayTeam": {"name": "Chelsea (Mikky)"},
		"start": "2026-08-31T18:00:00Z",
		"live": true,
		"markets": [
			{"name": "1X2", "selections": [
				{"name": "Home", "odds": 1.85},
				{"name": "Draw", "price": "3.40"},
				{"name": "Away", "value": 4.2}
			]}
		]
	}`)

	m, ok := Extract(item)
	if !ok {
		t.Fatal("完整记录应该提取成功")
	}
	if m.MatchID != "42" {
		t.Errorf("MatchID = %q, 期望 \"42\" (数字ID转字符串)", m.MatchID)
	}
	if m.HomeTeam != "Arsenal (Kodiak)" || m.AwayTeam != "Chelsea (Mikky)" {
		t.Errorf("队名解析错误: %q vs %q", m.HomeTeam, m.AwayTeam)
	}
	if m.Tournament != "GT Leagues" {
		t.Errorf("Tournament = %q", m.Tournament)
	}
	if !m.IsLive {
		t.Error("live=true 应该解析为滚球")
	}
	if m.StartTime == nil || !m.StartTime.Equal(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime = %v", m.StartTime)
	}
	if len(m.Odds) != 3 {
		t.Fatalf("赔率条数 = %d, 期望 3", len(m.Odds))
	}
	// 数字字符串价格 "3.40" 必须被接受
	if m.Odds[1].Odds != 3.40 {
		t.Errorf("字符串价格解析错误: %v", m.Odds[1].Odds)
	}
}

// TestExtract_IdempotentSyntheticID 测试无显式ID时合成ID的稳定性
func TestExtract_IdempotentSyntheticID(t *testing.T) {
	raw := `{"sport": "efootball", "home": "FC Alpha", "away": "FC Beta", "start": "2026-09-01 20:00"}`

	m1, ok1 := Extract(decode(t, raw))
	m2, ok2 := Extract(decode(t, raw))
	if !ok1 || !ok2 {
		t.Fatal("记录应该提取成功")
	}
	if m1.MatchID == "" {
		t.Fatal("合成ID不能为空")
	}
	if m1.MatchID != m2.MatchID {
		t.Errorf("同一场赛事的两次观测必须收敛到同一ID: %q vs %q", m1.MatchID, m2.MatchID)
	}
}

// TestExtract_DomainFilter 测试领域过滤
func TestExtract_DomainFilter(t *testing.T) {
	tests := []struct {
		name   string
		record string
		keep   bool
	}{
		{"网球被拒绝", `{"sport": "Tennis", "home": "Nadal", "away": "Federer"}`, false},
		{"真实足球被拒绝", `{"sport": "Labdarúgás", "home": "Fradi", "away": "Újpest"}`, false},
		{"sport命中esport", `{"sport": "eSport", "home": "A", "away": "B"}`, true},
		{"联赛名命中fifa", `{"sport": "", "league": "FIFA 26 Cup", "home": "A", "away": "B"}`, true},
		{"显示名命中e foci", `{"name": "E foci: A - B", "home": "A", "away": "B"}`, true},
		{"关键字大小写不敏感", `{"sport": "EFOOTBALL", "home": "A", "away": "B"}`, true},
		{"virtual football命中", `{"tournament": "Virtual Football League", "home": "A", "away": "B"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Extract(decode(t, tt.record))
			if ok != tt.keep {
				t.Errorf("提取结果 = %v, 期望 %v", ok, tt.keep)
			}
		})
	}
}

// TestExtract_TeamFallback 测试显示名称切分回退
func TestExtract_TeamFallback(t *testing.T) {
	m, ok := Extract(decode(t, `{"sport": "esport", "name": "Real Madrid (Pro) - Barcelona (Max)"}`))
	if !ok {
		t.Fatal("显示名称可切分时应该提取成功")
	}
	if m.HomeTeam != "Real Madrid (Pro)" || m.AwayTeam != "Barcelona (Max)" {
		t.Errorf("切分结果: %q vs %q", m.HomeTeam, m.AwayTeam)
	}

	// 队名与显示名都缺失时拒绝
	if _, ok := Extract(decode(t, `{"sport": "esport", "name": "no separator here"}`)); ok {
		t.Error("无法解析队名的记录应该被拒绝")
	}
}

// TestExtract_MalformedRecords 测试畸形记录只拒绝不崩溃
func TestExtract_MalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"空对象", `{}`},
		{"队名是数字", `{"sport": "esport", "home": 1, "away": 2}`},
		{"只有主队", `{"sport": "esport", "home": "A"}`},
		{"队名对象缺name", `{"sport": "esport", "homeTeam": {"id": 5}, "awayTeam": {"id": 6}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Extract(decode(t, tt.record)); ok {
				t.Error("畸形记录应该被拒绝")
			}
		})
	}

	t.Run("nil输入", func(t *testing.T) {
		if _, ok := Extract(nil); ok {
			t.Error("nil输入应该被拒绝")
		}
	})
}

// TestParseStart_EpochHeuristic 测试epoch秒/毫秒启发式
func TestParseStart_EpochHeuristic(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want time.Time
	}{
		{"秒级epoch", float64(1756665600), time.Unix(1756665600, 0).UTC()},
		{"毫秒级epoch", float64(1756665600000), time.UnixMilli(1756665600000).UTC()},
		{"数字字符串按epoch", "1756665600", time.Unix(1756665600, 0).UTC()},
		{"RFC3339", "2026-08-31T18:00:00Z", time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)},
		{"匈牙利点分日期", "2026.08.31 18:00", time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseStart(tt.in)
			if got == nil {
				t.Fatal("解析结果不应为nil")
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseStart = %v, 期望 %v", got, tt.want)
			}
		})
	}

	t.Run("垃圾输入返回nil", func(t *testing.T) {
		if got := parseStart("not a date"); got != nil {
			t.Errorf("期望nil, 得到 %v", got)
		}
		if got := parseStart(nil); got != nil {
			t.Errorf("期望nil, 得到 %v", got)
		}
	})
}

// TestParseOdds_BadPrices 测试坏价格静默丢弃
func TestParseOdds_BadPrices(t *testing.T) {
	item := decode(t, `{
		"odds": [
			{"market": "1X2", "outcomes": [
				{"selection": "1", "price": "1.85"},
				{"selection": "X", "price": "n/a"},
				{"selection": "2", "price": -1},
				{"selection": "over"}
			]}
		]
	}`)

	odds := parseOdds(item)
	if len(odds) != 1 {
		t.Fatalf("赔率条数 = %d, 期望只保留1条有效价格", len(odds))
	}
	if odds[0].Market != "1X2" || odds[0].Selection != "1" || odds[0].Odds != 1.85 {
		t.Errorf("赔率解析错误: %+v", odds[0])
	}
}
