package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"marsarena/pkg/core"

	_ "modernc.org/sqlite"
)

// SessionIndex SQLite 索引：会话进出与开火事件，写入在后台 goroutine 完成
// 队列满时直接丢弃，tick 日志才是完整记录
type SessionIndex struct {
	db    *sql.DB
	runID string

	ch     chan indexReq
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

type indexReqKind int

const (
	reqJoin indexReqKind = iota + 1
	reqLeave
	reqFire
	reqSync
)

type indexReq struct {
	kind     indexReqKind
	id       core.ClientID
	username string
	at       time.Time
	fire     core.FireEvent
	done     chan struct{}
}

// SessionRow 一次会话
type SessionRow struct {
	RunID    string
	ClientID core.ClientID
	Username string
	JoinedAt time.Time
	LeftAt   *time.Time
}

// OpenSessionIndex 打开（或创建）索引库
func OpenSessionIndex(path string) (*SessionIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initIndexPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initIndexSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SessionIndex{
		db:    db,
		runID: time.Now().UTC().Format(time.RFC3339Nano),
		ch:    make(chan indexReq, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initIndexPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initIndexSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			run_id TEXT NOT NULL,
			client_id INTEGER NOT NULL,
			username TEXT NOT NULL,
			joined_at TEXT NOT NULL,
			left_at TEXT,
			PRIMARY KEY (run_id, client_id)
		);`,
		`CREATE TABLE IF NOT EXISTS fires (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			weapon TEXT NOT NULL,
			damage INTEGER NOT NULL,
			yaw REAL NOT NULL,
			pitch REAL NOT NULL,
			ammo INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fires_client ON fires(run_id, client_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SessionIndex) enqueue(r indexReq) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *SessionIndex) RecordJoin(id core.ClientID, username string) {
	s.enqueue(indexReq{kind: reqJoin, id: id, username: username, at: time.Now().UTC()})
}

func (s *SessionIndex) RecordLeave(id core.ClientID) {
	s.enqueue(indexReq{kind: reqLeave, id: id, at: time.Now().UTC()})
}

func (s *SessionIndex) RecordTick(report TickReport) {
	for _, f := range report.Fires {
		s.enqueue(indexReq{kind: reqFire, fire: f})
	}
}

// Sync 等待已入队的写入提交
func (s *SessionIndex) Sync() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- indexReq{kind: reqSync, done: done}
	<-done
}

// Sessions 本次运行的会话列表
func (s *SessionIndex) Sessions(ctx context.Context) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, username, joined_at, left_at FROM sessions WHERE run_id = ? ORDER BY client_id`, s.runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			id       int64
			row      SessionRow
			joinedAt string
			leftAt   sql.NullString
		)
		if err := rows.Scan(&id, &row.Username, &joinedAt, &leftAt); err != nil {
			return nil, err
		}
		row.RunID = s.runID
		row.ClientID = core.ClientID(id)
		if t, err := time.Parse(time.RFC3339Nano, joinedAt); err == nil {
			row.JoinedAt = t
		}
		if leftAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, leftAt.String); err == nil {
				row.LeftAt = &t
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FireCount 某客户端在本次运行中的开火次数
func (s *SessionIndex) FireCount(ctx context.Context, id core.ClientID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fires WHERE run_id = ? AND client_id = ?`, s.runID, int64(id)).Scan(&n)
	return n, err
}

func (s *SessionIndex) loop() {
	ctx := context.Background()

	var tx *sql.Tx
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("索引提交失败: %v", err)
		}
		tx = nil
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				log.Printf("索引事务开启失败: %v", err)
				continue
			}
			tx = txx
		}

		var err error
		switch r.kind {
		case reqJoin:
			_, err = tx.Exec(`INSERT OR REPLACE INTO sessions(run_id,client_id,username,joined_at,left_at) VALUES(?,?,?,?,NULL)`,
				s.runID, int64(r.id), r.username, r.at.Format(time.RFC3339Nano))
		case reqLeave:
			_, err = tx.Exec(`UPDATE sessions SET left_at = ? WHERE run_id = ? AND client_id = ? AND left_at IS NULL`,
				r.at.Format(time.RFC3339Nano), s.runID, int64(r.id))
		case reqFire:
			f := r.fire
			_, err = tx.Exec(`INSERT INTO fires(run_id,tick,client_id,weapon,damage,yaw,pitch,ammo) VALUES(?,?,?,?,?,?,?,?)`,
				s.runID, int64(f.Tick), int64(f.Owner), f.Weapon, int64(f.Damage), f.Yaw, f.Pitch, int64(f.AmmoRem))
		}
		if err != nil {
			log.Printf("索引写入失败: %v", err)
			_ = tx.Rollback()
			tx = nil
			continue
		}

		// 队列空了就提交
		if len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
