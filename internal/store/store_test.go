package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/tippmixwatch/internal/extract"
	"github.com/RecoveryAshes/tippmixwatch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMatch(odds ...models.MatchOdd) *models.Match {
	start := time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)
	return &models.Match{
		MatchID:    "42",
		Sport:      "E-sport labdarúgás",
		Tournament: "GT Leagues",
		HomeTeam:   "Arsenal (Kodiak)",
		AwayTeam:   "Chelsea (Mikky)",
		StartTime:  &start,
		IsLive:     true,
		Odds:       odds,
	}
}

// TestUpsertMatch_Idempotent 测试同一场赛事重复写入只有一行
func TestUpsertMatch_Idempotent(t *testing.T) {
	s := newTestStore(t)

	m := testMatch(models.MatchOdd{Market: "1X2", Selection: "Home", Odds: 1.85})
	if err := s.UpsertMatch(m); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	if err := s.UpsertMatch(m); err != nil {
		t.Fatalf("重复写入失败: %v", err)
	}

	count, err := s.CountMatches()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("赛事行数 = %d, 重复观测必须收敛为1行", count)
	}
}

// TestUpsertMatch_OddsLatestWins 测试赔率变化后保留最新值
func TestUpsertMatch_OddsLatestWins(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertMatch(testMatch(models.MatchOdd{Market: "1X2", Selection: "Home", Odds: 1.85})); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMatch(testMatch(models.MatchOdd{Market: "1X2", Selection: "Home", Odds: 2.10})); err != nil {
		t.Fatal(err)
	}

	odds, err := s.OddsForMatch("42")
	if err != nil {
		t.Fatal(err)
	}
	if len(odds) != 1 {
		t.Fatalf("赔率行数 = %d, 期望 1", len(odds))
	}
	if odds[0].Odds != 2.10 {
		t.Errorf("赔率 = %v, 期望保留最新值 2.10", odds[0].Odds)
	}
}

// TestUpsertMatch_OmittedMarketsKept 测试后续观测缺失的市场不被删除
func TestUpsertMatch_OmittedMarketsKept(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertMatch(testMatch(
		models.MatchOdd{Market: "1X2", Selection: "Home", Odds: 1.85},
		models.MatchOdd{Market: "Over/Under 2.5", Selection: "Over", Odds: 1.95},
	)); err != nil {
		t.Fatal(err)
	}

	// 第二次观测只带1X2,不应删除Over/Under
	if err := s.UpsertMatch(testMatch(
		models.MatchOdd{Market: "1X2", Selection: "Home", Odds: 1.90},
	)); err != nil {
		t.Fatal(err)
	}

	odds, err := s.OddsForMatch("42")
	if err != nil {
		t.Fatal(err)
	}
	if len(odds) != 2 {
		t.Fatalf("赔率行数 = %d, 缺失市场不应被删除", len(odds))
	}
}

// TestMatchByID_NotFound 测试未知ID返回nil而非错误
func TestMatchByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	m, err := s.MatchByID("nope")
	if err != nil {
		t.Fatalf("未命中不是错误: %v", err)
	}
	if m != nil {
		t.Errorf("期望nil, 得到 %+v", m)
	}
}

// TestAppendRaw_LinkedAndUnlinked 测试raw审计行的两种形态
func TestAppendRaw_LinkedAndUnlinked(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertMatch(testMatch()); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendRaw("42", map[string]interface{}{"id": 42}); err != nil {
		t.Fatalf("关联raw写入失败: %v", err)
	}
	if err := s.AppendRaw("42", map[string]interface{}{"id": 42, "v": 2}); err != nil {
		t.Fatal(err)
	}
	// 未提取出赛事的整段载荷: match_id为空
	if err := s.AppendRaw("", map[string]interface{}{"error": "maintenance"}); err != nil {
		t.Fatalf("不关联raw写入失败: %v", err)
	}

	n, err := s.CountRawForMatch("42")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("关联raw行数 = %d, 期望 2", n)
	}
}

// TestAppendEvents 测试网络事件与拦截事件追加写
func TestAppendEvents(t *testing.T) {
	s := newTestStore(t)

	err := s.AppendNetworkEvent(models.NetworkEvent{
		SessionID:  "sess-1",
		Phase:      models.PhaseResponse,
		URL:        "https://api.tippmix.hu/tippmix/events",
		Status:     200,
		BodyBytes:  1280,
		DurationMS: 45,
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("网络事件写入失败: %v", err)
	}

	err = s.AppendBlockEvent(models.BlockEvent{
		SessionID:  "sess-1",
		Source:     models.BlockSourceAPI,
		BlockType:  models.BlockGeoIP,
		URL:        "https://api.tippmix.hu/tippmix/events",
		Status:     302,
		Evidence:   "https://www.tippmix.hu/ip-blokk",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("拦截事件写入失败: %v", err)
	}
}

// TestPipeline_PayloadToRows 端到端: 载荷→提取→落盘
func TestPipeline_PayloadToRows(t *testing.T) {
	s := newTestStore(t)

	var payload map[string]interface{}
	raw := `{
		"events": [{
			"id": 42,
			"sport": "efootball",
			"homeTeam": {"name": "Arsenal (Kodiak)"},
			"awayTeam": {"name": "Chelsea (Mikky)"},
			"start": "2026-08-31T18:00:00Z",
			"markets": [
				{"name": "1X2", "selections": [{"name": "Home", "odds": 1.85}]}
			]
		}]
	}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}

	for _, item := range extract.Candidates(payload) {
		m, ok := extract.Extract(item)
		if !ok {
			t.Fatal("样例载荷应该提取成功")
		}
		if err := s.UpsertMatch(m); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendRaw(m.MatchID, item); err != nil {
			t.Fatal(err)
		}
	}

	m, err := s.MatchByID("42")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("赛事42应该存在")
	}
	if m.HomeTeam != "Arsenal (Kodiak)" || m.AwayTeam != "Chelsea (Mikky)" {
		t.Errorf("队名: %q vs %q", m.HomeTeam, m.AwayTeam)
	}

	odds, err := s.OddsForMatch("42")
	if err != nil {
		t.Fatal(err)
	}
	if len(odds) != 1 || odds[0].Market != "1X2" || odds[0].Selection != "Home" || odds[0].Odds != 1.85 {
		t.Errorf("赔率行: %+v", odds)
	}

	n, err := s.CountRawForMatch("42")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("raw行数 = %d, 期望 1", n)
	}
}
