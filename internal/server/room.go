package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
)

// datagramTransport 房间需要的 UDP 能力
type datagramTransport interface {
	Bind(id core.ClientID, addr *net.UDPAddr)
	Unbind(id core.ClientID)
	SendTo(addr *net.UDPAddr, data []byte) error
	Port() int
}

// Recorder 旁路记录：日志、索引、观察者
type Recorder interface {
	RecordJoin(id core.ClientID, username string)
	RecordLeave(id core.ClientID)
	RecordTick(report TickReport)
}

type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg config.Config
	sim *SimulationContext

	peers        map[core.ClientID]*peer
	nextClientID core.ClientID
	datagrams    datagramTransport
	recorders    []Recorder
	tokens       *TokenIssuer

	joinCh  chan joinRequest
	inputCh chan *InputsEvent
	leaveCh chan core.ClientID
	bindCh  chan bindRequest
	statsCh chan chan RoomStats
}

type peer struct {
	session  Session
	username string
	udpAddr  *net.UDPAddr
}

type joinRequest struct {
	session  Session
	username string
	respCh   chan joinResult
}

type joinResult struct {
	id  core.ClientID
	err error
}

type bindRequest struct {
	id   core.ClientID
	addr *net.UDPAddr
}

// NewRoom 创建房间。datagrams 为 nil 时所有消息走可靠通道
func NewRoom(parent context.Context, cfg config.Config, world core.World, datagrams datagramTransport, recorders ...Recorder) *Room {
	ctx, cancel := context.WithCancel(parent)

	return &Room{
		ctx:          ctx,
		cancel:       cancel,
		cfg:          cfg,
		sim:          NewSimulation(cfg, world, core.DefaultSpawn()),
		peers:        make(map[core.ClientID]*peer),
		nextClientID: 1,
		datagrams:    datagrams,
		recorders:    recorders,
		tokens:       NewTokenIssuerFromEnv(),
		joinCh:       make(chan joinRequest),
		inputCh:      make(chan *InputsEvent, 1024),
		leaveCh:      make(chan core.ClientID, 256),
		bindCh:       make(chan bindRequest, 64),
		statsCh:      make(chan chan RoomStats),
	}
}

func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(r.cfg.TickDuration())
	defer ticker.Stop()

	log.Printf("房间循环启动: %d TPS", r.cfg.TickRateHz)

	for {
		select {
		case <-r.ctx.Done():
			r.closeAllConnections(false)
			log.Println("房间循环停止")
			return

		case req := <-r.joinCh:
			r.handleJoin(req)

		case ev := <-r.inputCh:
			r.handleInputs(ev)

		case id := <-r.leaveCh:
			r.handleLeave(id)

		case req := <-r.bindCh:
			r.handleBind(req)

		case respCh := <-r.statsCh:
			respCh <- r.collectStats()

		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Room) Shutdown() {
	r.cancel()
}

// Join 注册新客户端，返回分配的 ID
func (r *Room) Join(session Session, username string) (core.ClientID, error) {
	respCh := make(chan joinResult, 1)

	select {
	case <-r.ctx.Done():
		return 0, fmt.Errorf("房间已关闭")
	case r.joinCh <- joinRequest{session: session, username: username, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return 0, fmt.Errorf("房间已关闭")
	case res := <-respCh:
		return res.id, res.err
	}
}

// EnqueueInputs 投递输入；队列满时丢弃（输入本身就会冗余发送）
func (r *Room) EnqueueInputs(ev *InputsEvent) {
	select {
	case <-r.ctx.Done():
	case r.inputCh <- ev:
	default:
		log.Printf("客户端 %d: 输入队列满，丢弃 %d 个输入", ev.ClientID, len(ev.Inputs))
	}
}

func (r *Room) Leave(id core.ClientID) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- id:
	}
}

// BindDatagram 令牌校验通过后绑定 UDP 地址
func (r *Room) BindDatagram(id core.ClientID, addr *net.UDPAddr) {
	select {
	case <-r.ctx.Done():
	case r.bindCh <- bindRequest{id: id, addr: addr}:
	default:
	}
}

func (r *Room) tick() {
	// 先取走已到达的输入再模拟
	for drained := false; !drained; {
		select {
		case ev := <-r.inputCh:
			r.handleInputs(ev)
		default:
			drained = true
		}
	}

	report := r.sim.Step()
	r.sim.BroadcastSnapshots(report.Snapshot, r)

	for _, f := range report.Fires {
		log.Printf("客户端 %d 开火: %s 伤害 %d 剩余弹药 %d (tick %d)", f.Owner, f.Weapon, f.Damage, f.AmmoRem, f.Tick)
	}
	for _, rec := range r.recorders {
		rec.RecordTick(report)
	}
}

func (r *Room) handleInputs(ev *InputsEvent) {
	if ev == nil || len(ev.Inputs) == 0 {
		return
	}
	if _, ok := r.peers[ev.ClientID]; !ok {
		return
	}
	r.sim.HandleInputs(ev.ClientID, ev.Inputs)
}

func (r *Room) handleJoin(req joinRequest) {
	if len(r.peers) >= r.cfg.Network.MaxClients {
		req.respCh <- joinResult{err: fmt.Errorf("服务器已满 (%d/%d)", len(r.peers), r.cfg.Network.MaxClients)}
		return
	}

	// 分配客户端 ID
	id := r.nextClientID
	r.nextClientID++

	token, err := r.tokens.Issue(id)
	if err != nil {
		req.respCh <- joinResult{err: fmt.Errorf("生成会话令牌失败: %w", err)}
		return
	}

	var udpPort uint32
	if r.datagrams != nil {
		udpPort = uint32(r.datagrams.Port())
	}
	welcome := protocol.Welcome{
		ClientID: id,
		Token:    token,
		TickRate: uint32(r.cfg.TickRateHz),
		UDPPort:  udpPort,
	}
	if err := req.session.SendMessage(welcome); err != nil {
		req.respCh <- joinResult{err: fmt.Errorf("发送欢迎消息失败: %w", err)}
		return
	}
	if err := req.session.SendMessage(protocol.WeaponConfigList{Configs: r.cfg.Weapons}); err != nil {
		req.respCh <- joinResult{err: fmt.Errorf("发送武器配置失败: %w", err)}
		return
	}

	req.session.SetClientID(id)
	r.peers[id] = &peer{session: req.session, username: req.username}
	r.sim.HandleConnect(id, req.username)

	for _, rec := range r.recorders {
		rec.RecordJoin(id, req.username)
	}
	log.Printf("客户端 %d 加入 (%s)，当前人数: %d", id, req.username, len(r.peers))

	// 连接在登记 ID 前已关闭时，关闭流程看不到 ID，由这里清理
	if req.session.Closed() {
		r.handleLeave(id)
		req.respCh <- joinResult{err: fmt.Errorf("客户端 %d 在加入过程中断开", id)}
		return
	}
	req.respCh <- joinResult{id: id}
}

func (r *Room) handleLeave(id core.ClientID) {
	if _, exists := r.peers[id]; !exists {
		return
	}

	delete(r.peers, id)
	if r.datagrams != nil {
		r.datagrams.Unbind(id)
	}
	// 广播 Despawn
	r.sim.HandleDisconnect(id, r)

	for _, rec := range r.recorders {
		rec.RecordLeave(id)
	}
}

func (r *Room) handleBind(req bindRequest) {
	p, ok := r.peers[req.id]
	if !ok || r.datagrams == nil {
		return
	}
	first := p.udpAddr == nil
	p.udpAddr = req.addr
	r.datagrams.Bind(req.id, req.addr)

	// 通过 UDP 回一个 Ping，客户端收到后停止发送 Hello
	if data, err := EncodeMessage(protocol.Ping{ServerTime: time.Now().UnixMilli()}); err == nil {
		_ = r.datagrams.SendTo(req.addr, data)
	}
	if first {
		log.Printf("客户端 %d: UDP 绑定到 %s", req.id, req.addr)
	}
}

// Send 按通道约定投递消息：不可靠消息在已绑定 UDP 且不超过数据报上限时走 UDP，否则走可靠通道
func (r *Room) Send(id core.ClientID, msg protocol.ServerMessage) {
	p, ok := r.peers[id]
	if !ok {
		return
	}

	if protocol.ServerChannel(msg) == protocol.ChannelUnreliable && p.udpAddr != nil && r.datagrams != nil {
		data, err := EncodeMessage(msg)
		if err == nil && len(data) <= protocol.MaxDatagramSize {
			if err := r.datagrams.SendTo(p.udpAddr, data); err == nil {
				return
			}
		}
	}

	if err := p.session.SendMessage(msg); err != nil {
		log.Printf("客户端 %d: 发送 %T 失败: %v", id, msg, err)
	}
}

func (r *Room) closeAllConnections(notify bool) {
	for _, p := range r.peers {
		if notify {
			p.session.Close()
		} else {
			p.session.CloseWithoutNotify()
		}
	}
}
