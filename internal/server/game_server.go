package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/transport"
)

// Options 服务器启动参数（来自命令行）
type Options struct {
	Addr        string // 可靠通道地址
	Proto       string // tcp | kcp
	UDPAddr     string // 不可靠通道地址，空则不启用
	JournalDir  string // 压缩 tick 日志目录，空则不记录
	IndexPath   string // SQLite 索引路径，空则不记录
	ObserveAddr string // 观察者 WebSocket 地址，空则不启用
}

// GameServer 游戏服务器
type GameServer struct {
	cfg  config.Config
	opts Options
	room *Room

	// 网络
	listener  net.Listener
	datagrams *DatagramEndpoint
	observer  *Observer
	httpSrv   *http.Server

	// 记录
	journal *Journal
	index   *SessionIndex

	// 控制
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once
}

// NewGameServer 创建新的游戏服务器
func NewGameServer(cfg config.Config, opts Options) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &GameServer{
		cfg:      cfg,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
}

// Start 启动服务器，阻塞直到 Shutdown
func (s *GameServer) Start() error {
	log.Printf("启动游戏服务器: %s (%s)", s.opts.Addr, s.opts.Proto)

	listener, err := transport.Listen(s.opts.Proto, s.opts.Addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener

	var recorders []Recorder
	if s.opts.JournalDir != "" {
		s.journal = NewJournal(s.opts.JournalDir)
		recorders = append(recorders, s.journal)
	}
	if s.opts.IndexPath != "" {
		idx, err := OpenSessionIndex(s.opts.IndexPath)
		if err != nil {
			s.listener.Close()
			return fmt.Errorf("打开索引失败: %w", err)
		}
		s.index = idx
		recorders = append(recorders, idx)
	}
	if s.opts.ObserveAddr != "" {
		s.observer = NewObserver()
		recorders = append(recorders, s.observer)
	}

	var datagrams datagramTransport
	if s.opts.UDPAddr != "" {
		d, err := ListenDatagram(s.opts.UDPAddr, s.cfg.Network)
		if err != nil {
			s.listener.Close()
			return err
		}
		s.datagrams = d
		datagrams = d
		log.Printf("UDP 监听中: %d", d.Port())
	}

	s.room = NewRoom(s.ctx, s.cfg, core.DefaultArena(), datagrams, recorders...)

	// 启动房间循环
	s.wg.Add(1)
	go s.room.Run(&s.wg)

	if s.datagrams != nil {
		s.wg.Add(1)
		go s.datagrams.Run(s.ctx, &s.wg, s.room)
	}

	if s.observer != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/observe", s.observer.WSHandler())
		mux.HandleFunc("/stats", s.room.StatsHandler())
		s.httpSrv = &http.Server{Addr: s.opts.ObserveAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log.Printf("观察者端点: ws://%s/observe", s.opts.ObserveAddr)
			if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("观察者服务失败: %v", err)
			}
		}()
	}

	log.Printf("服务器监听中: %s", s.listener.Addr())

	// 启动连接接受循环
	s.wg.Add(1)
	go s.acceptLoop()

	// 等待关闭信号
	<-s.shutdown

	log.Println("服务器正在关闭...")
	return nil
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.once.Do(s.shutdownOnce)
}

func (s *GameServer) shutdownOnce() {
	log.Println("正在关闭服务器...")

	// 取消上下文
	s.cancel()

	if s.room != nil {
		s.room.Shutdown()
	}

	// 关闭监听器
	if s.listener != nil {
		s.listener.Close()
	}
	if s.datagrams != nil {
		s.datagrams.Close()
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.httpSrv.Shutdown(ctx)
		cancel()
	}

	// 关闭 shutdown 通道
	close(s.shutdown)

	// 等待所有 goroutine 结束
	s.wg.Wait()

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			log.Printf("关闭日志失败: %v", err)
		}
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			log.Printf("关闭索引失败: %v", err)
		}
	}

	log.Println("服务器已关闭")
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("停止接受新连接")
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Printf("接受连接失败: %v", err)
				continue
			}
		}

		log.Printf("新连接来自: %s", conn.RemoteAddr())

		// 创建连接对象
		connection := NewConnection(conn, s)

		// 启动连接处理
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}

// handleConnect 处理加入请求
func (s *GameServer) handleConnect(conn *Connection, username string) (core.ClientID, error) {
	if s.room == nil {
		return 0, fmt.Errorf("房间未初始化")
	}
	return s.room.Join(conn, username)
}

// handleInputs 可靠通道上收到的输入
func (s *GameServer) handleInputs(ev *InputsEvent) {
	if s.room == nil {
		return
	}
	s.room.EnqueueInputs(ev)
}

// removeClient 移除客户端
func (s *GameServer) removeClient(id core.ClientID) {
	if s.room == nil {
		return
	}
	s.room.Leave(id)
}
