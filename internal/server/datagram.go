package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"

	"golang.org/x/time/rate"
)

const datagramReadBuffer = 2048

// DatagramEndpoint 不可靠通道：输入上行与差量快照下行
// 客户端先发送带 JWT 的 Hello 绑定地址，之后的数据报按来源地址识别身份
type DatagramEndpoint struct {
	conn *net.UDPConn
	cfg  config.NetworkConfig

	mu       sync.Mutex
	byAddr   map[string]core.ClientID
	byID     map[core.ClientID]*net.UDPAddr
	limiters map[string]*rate.Limiter // 仅已绑定地址
	unbound  *rate.Limiter            // 未绑定来源共享，只够完成 Hello
}

// ListenDatagram 监听 UDP 地址
func ListenDatagram(addr string, cfg config.NetworkConfig) (*DatagramEndpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("解析 UDP 地址失败: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("监听 UDP 失败: %w", err)
	}
	return &DatagramEndpoint{
		conn:     conn,
		cfg:      cfg,
		byAddr:   make(map[string]core.ClientID),
		byID:     make(map[core.ClientID]*net.UDPAddr),
		limiters: make(map[string]*rate.Limiter),
		unbound:  rate.NewLimiter(rate.Limit(cfg.InboundRatePerSec), cfg.InboundBurst),
	}, nil
}

// Port 实际监听的端口
func (d *DatagramEndpoint) Port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close 关闭 UDP socket
func (d *DatagramEndpoint) Close() error {
	return d.conn.Close()
}

// Run 读循环，直到 ctx 取消或 socket 关闭
func (d *DatagramEndpoint) Run(ctx context.Context, wg *sync.WaitGroup, room *Room) {
	defer wg.Done()

	buf := make([]byte, datagramReadBuffer)
	for {
		_ = d.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("UDP 读取失败: %v", err)
			continue
		}

		if !d.allow(addr) {
			continue
		}
		d.handleDatagram(buf[:n], addr, room)
	}
}

func (d *DatagramEndpoint) handleDatagram(data []byte, addr *net.UDPAddr, room *Room) {
	event, err := DecodePacket(data)
	if err != nil {
		log.Printf("UDP %s: 丢弃无法解析的数据报: %v", addr, err)
		return
	}

	switch event.Kind {
	case EventHello:
		id, err := room.tokens.Verify(event.Hello.Token)
		if err != nil {
			log.Printf("UDP %s: %v", addr, err)
			return
		}
		room.BindDatagram(id, addr)

	case EventInputs:
		id, ok := d.lookup(addr)
		if !ok {
			return
		}
		event.Inputs.ClientID = id
		room.EnqueueInputs(event.Inputs)

	default:
		// 其余消息只走可靠通道
	}
}

// allow 已绑定地址各自限流，其余来源共用一个限流器
func (d *DatagramEndpoint) allow(addr *net.UDPAddr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.limiters[addr.String()]; ok {
		return l.Allow()
	}
	return d.unbound.Allow()
}

// Bind 记录客户端的 UDP 地址，替换旧绑定
func (d *DatagramEndpoint) Bind(id core.ClientID, addr *net.UDPAddr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.byID[id]; ok {
		if old.String() != addr.String() {
			delete(d.byAddr, old.String())
			delete(d.limiters, old.String())
		}
	}
	d.byID[id] = addr
	d.byAddr[addr.String()] = id
	if _, ok := d.limiters[addr.String()]; !ok {
		d.limiters[addr.String()] = rate.NewLimiter(rate.Limit(d.cfg.InboundRatePerSec), d.cfg.InboundBurst)
	}
}

// Unbind 客户端离开时清理绑定与限流器
func (d *DatagramEndpoint) Unbind(id core.ClientID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.byID[id]
	if !ok {
		return
	}
	delete(d.byID, id)
	delete(d.byAddr, addr.String())
	delete(d.limiters, addr.String())
}

func (d *DatagramEndpoint) lookup(addr *net.UDPAddr) (core.ClientID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byAddr[addr.String()]
	return id, ok
}

// SendTo 发送一个数据报
func (d *DatagramEndpoint) SendTo(addr *net.UDPAddr, data []byte) error {
	if len(data) > protocol.MaxDatagramSize {
		return fmt.Errorf("数据报过大: %d bytes", len(data))
	}
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := d.conn.WriteToUDP(data, addr)
	return err
}
