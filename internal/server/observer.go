package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/snapshot"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ObserverFrame 发给观察者的一帧（msgpack 编码的二进制 WebSocket 消息）
type ObserverFrame struct {
	Type     string                 `msgpack:"type"` // tick | join | leave
	Tick     uint32                 `msgpack:"tick"`
	ClientID core.ClientID          `msgpack:"client_id,omitempty"`
	Username string                 `msgpack:"username,omitempty"`
	Snapshot *snapshot.TickSnapshot `msgpack:"snapshot,omitempty"`
	Fires    []core.FireEvent       `msgpack:"fires,omitempty"`
}

// Observer 只读旁观流：每个 tick 的完整快照
type Observer struct {
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	lastTick atomic.Uint32

	mu   sync.Mutex
	subs map[uint64]chan []byte
}

func NewObserver() *Observer {
	return &Observer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]chan []byte),
	}
}

// Len 当前观察者数量
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observer) RecordJoin(id core.ClientID, username string) {
	o.broadcast(ObserverFrame{Type: "join", Tick: o.lastTick.Load(), ClientID: id, Username: username})
}

func (o *Observer) RecordLeave(id core.ClientID) {
	o.broadcast(ObserverFrame{Type: "leave", Tick: o.lastTick.Load(), ClientID: id})
}

func (o *Observer) RecordTick(report TickReport) {
	o.lastTick.Store(report.Tick)
	if o.Len() == 0 {
		return
	}
	snap := report.Snapshot
	o.broadcast(ObserverFrame{Type: "tick", Tick: report.Tick, Snapshot: &snap, Fires: report.Fires})
}

// broadcast 编码一次，非阻塞分发；慢的观察者直接丢帧
func (o *Observer) broadcast(frame ObserverFrame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.subs) == 0 {
		return
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		log.Printf("观察者帧编码失败: %v", err)
		return
	}
	for _, ch := range o.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (o *Observer) subscribe() (uint64, chan []byte) {
	id := o.nextID.Add(1)
	ch := make(chan []byte, 64)
	o.mu.Lock()
	o.subs[id] = ch
	o.mu.Unlock()
	return id, ch
}

func (o *Observer) unsubscribe(id uint64) {
	o.mu.Lock()
	delete(o.subs, id)
	o.mu.Unlock()
}

func (o *Observer) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := o.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := o.subscribe()
		defer o.unsubscribe(id)
		log.Printf("观察者 %d 已连接: %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// 写协程
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// 读循环只用于感知断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Printf("观察者 %d 已断开", id)
	}
}
