package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"marsarena/pkg/core"
)

// RoomStats 房间统计信息
type RoomStats struct {
	Tick    uint32        `json:"tick"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Clients []ClientStats `json:"clients"`
}

// ClientStats 单个客户端的同步状态
type ClientStats struct {
	ID            core.ClientID `json:"id"`
	Username      string        `json:"username"`
	UDPBound      bool          `json:"udp_bound"`
	Primed        bool          `json:"primed"`
	Buffered      int           `json:"buffered"`
	LastProcessed *uint32       `json:"last_processed,omitempty"`
	LastAcked     *uint32       `json:"last_acked,omitempty"`
}

// Stats 由房间 goroutine 生成统计
func (r *Room) Stats(ctx context.Context) (RoomStats, error) {
	respCh := make(chan RoomStats, 1)

	select {
	case <-ctx.Done():
		return RoomStats{}, ctx.Err()
	case <-r.ctx.Done():
		return RoomStats{}, fmt.Errorf("房间已关闭")
	case r.statsCh <- respCh:
	}

	select {
	case <-ctx.Done():
		return RoomStats{}, ctx.Err()
	case <-r.ctx.Done():
		return RoomStats{}, fmt.Errorf("房间已关闭")
	case st := <-respCh:
		return st, nil
	}
}

func (r *Room) collectStats() RoomStats {
	st := RoomStats{Tick: r.sim.Tick(), Elapsed: r.sim.Elapsed()}
	for id, p := range r.peers {
		cs := ClientStats{ID: id, Username: p.username, UDPBound: p.udpAddr != nil}
		if e, ok := r.sim.Entry(id); ok {
			cs.Primed = e.Info.Primed
			cs.Buffered = e.Info.Buffer.Len()
			cs.LastProcessed = e.Info.LastProcessedInputID
			cs.LastAcked = e.Info.LastAckedTick
		}
		st.Clients = append(st.Clients, cs)
	}
	sort.Slice(st.Clients, func(i, j int) bool { return st.Clients[i].ID < st.Clients[j].ID })
	return st
}

// StatsHandler 以 JSON 输出房间统计
func (r *Room) StatsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), time.Second)
		defer cancel()

		st, err := r.Stats(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(st)
	}
}
