package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/transport"
)

const (
	dialTimeout    = 5 * time.Second
	connectTimeout = 10 * time.Second
	helloInterval  = 200 * time.Millisecond
	writeTimeout   = time.Second
)

var (
	ErrNotConnected  = errors.New("未连接")
	ErrSendQueueFull = errors.New("发送队列满")
)

// NetworkClient 网络客户端：可靠通道（TCP/KCP）+ UDP 数据报
type NetworkClient struct {
	serverAddr string
	proto      string
	username   string

	conn net.Conn
	udp  *net.UDPConn

	// 服务器分配
	welcome protocol.Welcome

	connected atomic.Bool
	udpBound  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sendWG sync.WaitGroup
	once   sync.Once

	// 消息队列
	inbox       chan protocol.ServerMessage
	welcomeChan chan protocol.Welcome
	sendChan    chan []byte
	flush       chan struct{}
	errChan     chan error
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(serverAddr, proto, username string) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &NetworkClient{
		serverAddr:  serverAddr,
		proto:       proto,
		username:    username,
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan protocol.ServerMessage, 512),
		welcomeChan: make(chan protocol.Welcome, 1),
		sendChan:    make(chan []byte, 256),
		flush:       make(chan struct{}),
		errChan:     make(chan error, 1),
	}
}

// Connect 连接到服务器，等待 Welcome 后开始绑定 UDP
func (nc *NetworkClient) Connect() error {
	log.Printf("连接到服务器: %s (%s)", nc.serverAddr, nc.proto)

	conn, err := transport.Dial(nc.proto, nc.serverAddr, dialTimeout)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.connected.Store(true)

	log.Printf("已连接到服务器: %s", conn.RemoteAddr())

	nc.wg.Add(1)
	go nc.receiveLoop()

	nc.sendWG.Add(1)
	go nc.sendLoop()

	if err := nc.send(protocol.Connect{Username: nc.username}); err != nil {
		nc.Close()
		return fmt.Errorf("发送加入请求失败: %w", err)
	}

	select {
	case w := <-nc.welcomeChan:
		nc.welcome = w
		log.Printf("客户端 ID: %d，tick 频率: %d", w.ClientID, w.TickRate)

	case err := <-nc.errChan:
		nc.Close()
		return err

	case <-time.After(connectTimeout):
		nc.Close()
		return errors.New("等待欢迎消息超时")
	}

	if nc.welcome.UDPPort != 0 {
		if err := nc.openDatagram(int(nc.welcome.UDPPort)); err != nil {
			// UDP 不可用时所有消息走可靠通道
			log.Printf("UDP 不可用，回退到可靠通道: %v", err)
		}
	}
	return nil
}

func (nc *NetworkClient) openDatagram(port int) error {
	host, _, err := net.SplitHostPort(nc.serverAddr)
	if err != nil {
		return err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	udp, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	nc.udp = udp

	nc.wg.Add(2)
	go nc.datagramLoop()
	go nc.helloLoop()
	return nil
}

// Close 发送 Disconnect 并关闭连接
func (nc *NetworkClient) Close() {
	nc.once.Do(func() {
		if nc.connected.Load() {
			_ = nc.send(protocol.Disconnect{})
		}
		nc.connected.Store(false)

		// 先把发送队列写完
		close(nc.flush)
		done := make(chan struct{})
		go func() {
			nc.sendWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}

		nc.cancel()
		if nc.conn != nil {
			nc.conn.Close()
		}
		if nc.udp != nil {
			nc.udp.Close()
		}
		nc.wg.Wait()
		nc.sendWG.Wait()

		close(nc.inbox)
		log.Printf("网络客户端已关闭")
	})
}

// ClientID 服务器分配的客户端 ID
func (nc *NetworkClient) ClientID() core.ClientID {
	return nc.welcome.ClientID
}

// TickRate 服务器的 tick 频率
func (nc *NetworkClient) TickRate() int {
	return int(nc.welcome.TickRate)
}

func (nc *NetworkClient) IsConnected() bool {
	return nc.connected.Load()
}

// DatagramBound UDP 地址是否已被服务器确认
func (nc *NetworkClient) DatagramBound() bool {
	return nc.udpBound.Load()
}

// Inbox 除握手与心跳外的服务器消息
func (nc *NetworkClient) Inbox() <-chan protocol.ServerMessage {
	return nc.inbox
}

// Errors 连接错误（最多一个）
func (nc *NetworkClient) Errors() <-chan error {
	return nc.errChan
}

// ========== 消息接收 ==========

func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		data, err := transport.ReadFrame(nc.conn)
		if err != nil {
			switch {
			case nc.ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				nc.reportError(errors.New("服务器关闭了连接"))
			default:
				nc.reportError(fmt.Errorf("读取失败: %w", err))
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		if err := nc.handleMessage(data); err != nil {
			log.Printf("处理消息失败: %v", err)
		}
	}
}

func (nc *NetworkClient) handleMessage(data []byte) error {
	msg, err := protocol.UnmarshalServer(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch m := msg.(type) {
	case protocol.Welcome:
		select {
		case nc.welcomeChan <- m:
		default:
		}

	case protocol.Ping:
		// 原样回传时间戳，服务器据此计算 RTT
		if err := nc.send(protocol.Pong{ServerTime: m.ServerTime}); err != nil {
			log.Printf("回应心跳失败: %v", err)
		}

	default:
		nc.deliver(msg)
	}
	return nil
}

func (nc *NetworkClient) datagramLoop() {
	defer nc.wg.Done()

	buf := make([]byte, 2*protocol.MaxDatagramSize)
	for {
		n, err := nc.udp.Read(buf)
		if err != nil {
			if nc.ctx.Err() != nil {
				return
			}
			// 端口不可达等错误不终止循环
			continue
		}
		if !nc.udpBound.Swap(true) {
			log.Printf("UDP 已绑定")
		}

		msg, err := protocol.UnmarshalServer(buf[:n])
		if err != nil {
			log.Printf("丢弃无法解析的数据报: %v", err)
			continue
		}
		if _, ok := msg.(protocol.Ping); ok {
			continue
		}
		nc.deliver(msg)
	}
}

// helloLoop 周期发送 Hello 直到收到第一个数据报
func (nc *NetworkClient) helloLoop() {
	defer nc.wg.Done()

	data, err := protocol.MarshalClient(protocol.Hello{Token: nc.welcome.Token})
	if err != nil {
		log.Printf("序列化 Hello 失败: %v", err)
		return
	}

	ticker := time.NewTicker(helloInterval)
	defer ticker.Stop()

	for !nc.udpBound.Load() {
		if _, err := nc.udp.Write(data); err != nil && nc.ctx.Err() == nil {
			log.Printf("发送 Hello 失败: %v", err)
		}
		select {
		case <-nc.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (nc *NetworkClient) deliver(msg protocol.ServerMessage) {
	select {
	case nc.inbox <- msg:
	default:
		log.Printf("接收队列满，丢弃 %T", msg)
	}
}

func (nc *NetworkClient) reportError(err error) {
	nc.connected.Store(false)
	select {
	case nc.errChan <- err:
	default:
	}
}

// ========== 消息发送 ==========

func (nc *NetworkClient) sendLoop() {
	defer nc.sendWG.Done()

	for {
		select {
		case <-nc.ctx.Done():
			return

		case <-nc.flush:
			for {
				select {
				case data := <-nc.sendChan:
					if err := transport.WriteFrame(nc.conn, data, writeTimeout); err != nil {
						return
					}
				default:
					return
				}
			}

		case data := <-nc.sendChan:
			if err := transport.WriteFrame(nc.conn, data, writeTimeout); err != nil {
				log.Printf("发送数据失败: %v", err)
				return
			}
		}
	}
}

// send 通过可靠通道发送
func (nc *NetworkClient) send(msg protocol.ClientMessage) error {
	data, err := protocol.MarshalClient(msg)
	if err != nil {
		return err
	}
	select {
	case nc.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendInputs UDP 已绑定时走数据报，否则走可靠通道
func (nc *NetworkClient) SendInputs(inputs []core.PlayerInput) error {
	if !nc.connected.Load() {
		return ErrNotConnected
	}
	msg := protocol.PlayerInputs{Inputs: inputs}
	if nc.udp != nil && nc.udpBound.Load() {
		data, err := protocol.MarshalClient(msg)
		if err != nil {
			return fmt.Errorf("序列化输入失败: %w", err)
		}
		if len(data) <= protocol.MaxDatagramSize {
			if _, err := nc.udp.Write(data); err == nil {
				return nil
			}
		}
	}
	return nc.send(msg)
}
