package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/transport"
)

const (
	writeTimeout      = time.Second
	sendQueueSize     = 256
	heartbeatInterval = 5 * time.Second
	heartbeatTimeout  = 15 * time.Second
)

var (
	ErrSendQueueFull    = errors.New("发送队列满")
	ErrConnectionClosed = errors.New("连接已关闭")
)

// connHandler 连接收到的事件交给谁处理（GameServer）
type connHandler interface {
	handleConnect(c *Connection, username string) (core.ClientID, error)
	handleInputs(ev *InputsEvent)
	removeClient(id core.ClientID)
}

// Connection 可靠通道上的一个客户端，实现 Session
type Connection struct {
	conn    net.Conn
	handler connHandler

	id       atomic.Uint64 // 0 表示尚未加入
	closed   atomic.Bool
	lastRecv atomic.Int64 // UnixNano
	rtt      atomic.Int64 // 毫秒

	out  chan []byte
	done chan struct{}
}

func NewConnection(conn net.Conn, handler connHandler) *Connection {
	c := &Connection{
		conn:    conn,
		handler: handler,
		out:     make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
	c.lastRecv.Store(time.Now().UnixNano())
	return c
}

// Handle 启动读、写、心跳三个协程，直到 ctx 取消或连接关闭
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	wg.Add(3)
	go c.readLoop(ctx, wg)
	go c.writeLoop(ctx, wg)
	go c.heartbeat(ctx, wg)

	select {
	case <-ctx.Done():
	case <-c.done:
	}
	c.Close()
}

// Close 关闭连接，已加入的客户端会从房间移除
func (c *Connection) Close() { c.shutdown(true) }

// CloseWithoutNotify 房间主动关闭时使用，不再回调房间
func (c *Connection) CloseWithoutNotify() { c.shutdown(false) }

func (c *Connection) shutdown(notify bool) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)
	_ = c.conn.Close()

	id := c.ID()
	if notify && id != 0 {
		c.handler.removeClient(id)
	}
	log.Printf("%s: 连接已关闭", c)
}

// Send 排队一帧已编码的数据，不阻塞
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Connection) SendMessage(msg protocol.ServerMessage) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *Connection) ID() core.ClientID {
	return core.ClientID(c.id.Load())
}

func (c *Connection) SetClientID(id core.ClientID) {
	c.id.Store(uint64(id))
}

// RTT 最近一次心跳往返时间
// Closed 连接是否已关闭
func (c *Connection) Closed() bool { return c.closed.Load() }

func (c *Connection) RTT() time.Duration {
	return time.Duration(c.rtt.Load()) * time.Millisecond
}

func (c *Connection) String() string {
	if id := c.ID(); id != 0 {
		return fmt.Sprintf("客户端 %d (%s)", id, c.conn.RemoteAddr())
	}
	return fmt.Sprintf("连接 %s", c.conn.RemoteAddr())
}

func (c *Connection) writeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.out:
			if err := transport.WriteFrame(c.conn, data, writeTimeout); err != nil {
				log.Printf("%s: 发送失败: %v", c, err)
				c.Close()
				return
			}
		}
	}
}

// readLoop 读帧直到出错；读超时由心跳间隔决定
func (c *Connection) readLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.Close()

	for ctx.Err() == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatTimeout))
		data, err := transport.ReadFrame(c.conn)
		if err != nil {
			var netErr net.Error
			switch {
			case c.closed.Load():
			case errors.As(err, &netErr) && netErr.Timeout():
				log.Printf("%s: 读取超时", c)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				log.Printf("%s: 读取失败: %v", c, err)
			}
			return
		}

		c.lastRecv.Store(time.Now().UnixNano())
		if len(data) == 0 {
			continue
		}
		if err := c.dispatch(data); err != nil {
			log.Printf("%s: 处理消息失败: %v", c, err)
		}
	}
}

func (c *Connection) dispatch(data []byte) error {
	event, err := DecodePacket(data)
	if err != nil {
		return err
	}

	switch event.Kind {
	case EventConnect:
		if c.ID() != 0 {
			return errors.New("重复的连接请求")
		}
		id, err := c.handler.handleConnect(c, event.Connect.Username)
		if err != nil {
			return fmt.Errorf("加入失败: %w", err)
		}
		log.Printf("客户端 %d: 加入成功 (%s)", id, event.Connect.Username)

	case EventDisconnect:
		log.Printf("%s: 主动断开", c)
		c.Close()

	case EventInputs:
		// UDP 未绑定时输入走可靠通道；客户端 ID 以连接为准
		id := c.ID()
		if id == 0 {
			return errors.New("未加入就发送输入")
		}
		event.Inputs.ClientID = id
		c.handler.handleInputs(event.Inputs)

	case EventPong:
		if sent := event.Pong.ServerTime; sent > 0 {
			c.rtt.Store(time.Now().UnixMilli() - sent)
		}

	case EventHello:
		return errors.New("Hello 只能通过 UDP 发送")

	default:
		return fmt.Errorf("未知消息类型: %s", event.Kind)
	}
	return nil
}

// heartbeat 定期 Ping，长时间收不到任何数据则断开
func (c *Connection) heartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, c.lastRecv.Load())) > heartbeatTimeout {
				log.Printf("%s: 心跳超时", c)
				c.Close()
				return
			}
			_ = c.SendMessage(protocol.Ping{ServerTime: now.UnixMilli()})
		}
	}
}
