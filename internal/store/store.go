package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RecoveryAshes/tippmixwatch/internal/models"
)

// timeFormat 所有持久化时间戳的文本格式,UTC,可排序
const timeFormat = time.RFC3339

// Store 事件存储
// 所有写入要么整笔提交要么整笔失败,调用方看不到半写状态
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开(必要时创建)数据库并执行迁移
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	// SQLite单写者,限制连接数避免SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// migrate 执行数据库迁移
func (s *Store) migrate() error {
	migrations := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,

		// 赛事表: 每个match_id恰好一行
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			sport TEXT NOT NULL,
			tournament TEXT,
			home_team TEXT NOT NULL,
			away_team TEXT NOT NULL,
			start_time TEXT,
			is_live INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// 赔率表: (match_id, market, selection) 复合主键,最新价格覆盖
		`CREATE TABLE IF NOT EXISTS odds (
			match_id TEXT NOT NULL,
			market TEXT NOT NULL,
			selection TEXT NOT NULL,
			odds REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (match_id, market, selection)
		)`,

		// 原始载荷审计表: 只追加
		`CREATE TABLE IF NOT EXISTS raw_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT,
			payload TEXT NOT NULL,
			received_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_responses_match_id ON raw_responses(match_id)`,

		// 网络事件表: 只追加
		`CREATE TABLE IF NOT EXISTS network_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TEXT NOT NULL,
			session_id TEXT,
			phase TEXT NOT NULL,
			url TEXT NOT NULL,
			method TEXT,
			status INTEGER,
			resource_type TEXT,
			headers TEXT,
			body_bytes INTEGER,
			duration_ms INTEGER,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_network_events_phase ON network_events(phase)`,
		`CREATE INDEX IF NOT EXISTS idx_network_events_occurred_at ON network_events(occurred_at)`,

		// 拦截事件表: 只追加
		`CREATE TABLE IF NOT EXISTS block_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TEXT NOT NULL,
			session_id TEXT,
			source TEXT NOT NULL,
			url TEXT NOT NULL,
			status INTEGER,
			block_type TEXT NOT NULL,
			evidence TEXT,
			proxy_used TEXT,
			user_agent TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_block_events_block_type ON block_events(block_type)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertMatch 写入/覆盖赛事行与其全部赔率行,单事务
// 本次观测未出现的旧市场赔率行保持原样,不做删除
func (s *Store) UpsertMatch(m *models.Match) error {
	now := s.now().UTC().Format(timeFormat)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	var startTime interface{}
	if m.StartTime != nil {
		startTime = m.StartTime.UTC().Format(timeFormat)
	}
	var tournament interface{}
	if m.Tournament != "" {
		tournament = m.Tournament
	}

	_, err = tx.Exec(`
		INSERT INTO matches(match_id, sport, tournament, home_team, away_team, start_time, is_live, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			sport=excluded.sport,
			tournament=excluded.tournament,
			home_team=excluded.home_team,
			away_team=excluded.away_team,
			start_time=excluded.start_time,
			is_live=excluded.is_live,
			updated_at=excluded.updated_at`,
		m.MatchID, m.Sport, tournament, m.HomeTeam, m.AwayTeam, startTime, boolToInt(m.IsLive), now, now,
	)
	if err != nil {
		return fmt.Errorf("写入赛事失败 [%s]: %w", m.MatchID, err)
	}

	for _, o := range m.Odds {
		_, err = tx.Exec(`
			INSERT INTO odds(match_id, market, selection, odds, updated_at)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(match_id, market, selection) DO UPDATE SET
				odds=excluded.odds,
				updated_at=excluded.updated_at`,
			m.MatchID, o.Market, o.Selection, o.Odds, now,
		)
		if err != nil {
			return fmt.Errorf("写入赔率失败 [%s/%s/%s]: %w", m.MatchID, o.Market, o.Selection, err)
		}
	}

	return tx.Commit()
}

// AppendRaw 追加一条原始载荷,matchID可为空(提取失败的载荷)
func (s *Store) AppendRaw(matchID string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化载荷失败: %w", err)
	}
	var id interface{}
	if matchID != "" {
		id = matchID
	}
	_, err = s.db.Exec(
		`INSERT INTO raw_responses(match_id, payload, received_at) VALUES(?, ?, ?)`,
		id, string(body), s.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("追加原始载荷失败: %w", err)
	}
	return nil
}

// AppendNetworkEvent 追加一条网络事件
func (s *Store) AppendNetworkEvent(ev models.NetworkEvent) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO network_events(occurred_at, session_id, phase, url, method, status, resource_type, headers, body_bytes, duration_ms, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		occurred.UTC().Format(timeFormat), ev.SessionID, string(ev.Phase), ev.URL, ev.Method,
		ev.Status, ev.ResourceType, ev.Headers, ev.BodyBytes, ev.DurationMS, ev.Error,
	)
	if err != nil {
		return fmt.Errorf("追加网络事件失败: %w", err)
	}
	return nil
}

// AppendBlockEvent 追加一条拦截事件
func (s *Store) AppendBlockEvent(ev models.BlockEvent) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO block_events(occurred_at, session_id, source, url, status, block_type, evidence, proxy_used, user_agent)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		occurred.UTC().Format(timeFormat), ev.SessionID, string(ev.Source), ev.URL,
		ev.Status, string(ev.BlockType), ev.Evidence, ev.ProxyUsed, ev.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("追加拦截事件失败: %w", err)
	}
	return nil
}

// MatchByID 读取一条赛事,不存在时返回 (nil, nil)
func (s *Store) MatchByID(matchID string) (*models.Match, error) {
	row := s.db.QueryRow(`
		SELECT match_id, sport, COALESCE(tournament, ''), home_team, away_team, COALESCE(start_time, ''), is_live
		FROM matches WHERE match_id = ?`, matchID)

	var m models.Match
	var startTime string
	var isLive int
	err := row.Scan(&m.MatchID, &m.Sport, &m.Tournament, &m.HomeTeam, &m.AwayTeam, &startTime, &isLive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取赛事失败 [%s]: %w", matchID, err)
	}
	m.IsLive = isLive != 0
	if startTime != "" {
		if ts, err := time.Parse(timeFormat, startTime); err == nil {
			m.StartTime = &ts
		}
	}
	return &m, nil
}

// OddsForMatch 读取一条赛事当前的全部赔率行
func (s *Store) OddsForMatch(matchID string) ([]models.MatchOdd, error) {
	rows, err := s.db.Query(`
		SELECT market, selection, odds FROM odds
		WHERE match_id = ? ORDER BY market, selection`, matchID)
	if err != nil {
		return nil, fmt.Errorf("读取赔率失败 [%s]: %w", matchID, err)
	}
	defer rows.Close()

	var out []models.MatchOdd
	for rows.Next() {
		var o models.MatchOdd
		if err := rows.Scan(&o.Market, &o.Selection, &o.Odds); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountMatches 当前赛事行总数
func (s *Store) CountMatches() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&n)
	return n, err
}

// CountRawForMatch 指定match_id关联的原始载荷行数
func (s *Store) CountRawForMatch(matchID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM raw_responses WHERE match_id = ?`, matchID).Scan(&n)
	return n, err
}

// CountUnlinkedRaw 未关联任何赛事的原始载荷行数
func (s *Store) CountUnlinkedRaw() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM raw_responses WHERE match_id IS NULL`).Scan(&n)
	return n, err
}

// CountBlockEvents 指定分类的拦截事件行数
func (s *Store) CountBlockEvents(blockType models.BlockType) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM block_events WHERE block_type = ?`, string(blockType)).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
