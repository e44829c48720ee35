package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/snapshot"

	"github.com/klauspost/compress/zstd"
)

// JournalEntry 日志中的一行
type JournalEntry struct {
	Kind     string                 `json:"kind"` // join | leave | tick
	Tick     uint32                 `json:"tick"`
	ClientID core.ClientID          `json:"client_id,omitempty"`
	Username string                 `json:"username,omitempty"`
	Snapshot *snapshot.TickSnapshot `json:"snapshot,omitempty"`
	Fires    []core.FireEvent       `json:"fires,omitempty"`
}

const (
	JournalJoin  = "join"
	JournalLeave = "leave"
	JournalTick  = "tick"
)

// Journal 按小时轮转的 zstd 压缩 JSONL 日志，记录每个 tick 的完整快照与开火事件
type Journal struct {
	baseDir string
	prefix  string

	mu       sync.Mutex
	curHour  string
	f        *os.File
	enc      *zstd.Encoder
	w        *bufio.Writer
	lastTick uint32
}

// NewJournal 文件在第一次写入时创建
func NewJournal(baseDir string) *Journal {
	return &Journal{
		baseDir: baseDir,
		prefix:  "ticks",
	}
}

func (j *Journal) RecordJoin(id core.ClientID, username string) {
	j.write(JournalEntry{Kind: JournalJoin, Tick: j.tick(), ClientID: id, Username: username})
}

func (j *Journal) RecordLeave(id core.ClientID) {
	j.write(JournalEntry{Kind: JournalLeave, Tick: j.tick(), ClientID: id})
}

func (j *Journal) RecordTick(report TickReport) {
	snap := report.Snapshot
	j.mu.Lock()
	j.lastTick = report.Tick
	j.mu.Unlock()
	j.write(JournalEntry{Kind: JournalTick, Tick: report.Tick, Snapshot: &snap, Fires: report.Fires})
}

func (j *Journal) tick() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastTick
}

func (j *Journal) write(e JournalEntry) {
	if err := j.Write(e); err != nil {
		log.Printf("写入 tick 日志失败: %v", err)
	}
}

// Write 追加一行并刷新到压缩流
func (j *Journal) Write(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *Journal) rotateLocked(hour string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 128*1024)
	j.curHour = hour
	return nil
}

func (j *Journal) closeLocked() error {
	var err error
	if j.w != nil {
		_ = j.w.Flush()
	}
	if j.enc != nil {
		err = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	j.curHour = ""
	return err
}

func (j *Journal) pathForHour(hour string) string {
	return filepath.Join(j.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", j.prefix, hour))
}

// ReadJournal 读取一个日志文件（用于回放与排查）
func ReadJournal(path string) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("打开 zstd 流失败: %w", err)
	}
	defer dec.Close()

	var out []JournalEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("第 %d 行: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	return out, nil
}
