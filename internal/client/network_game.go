package client

import (
	"context"
	"fmt"
	"log"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/ai"
	"marsarena/pkg/core"
)

// InputSource 每个 tick 采样一次输入
type InputSource interface {
	Sample() core.Controls
}

// InputFunc 把函数当作输入源
type InputFunc func() core.Controls

func (f InputFunc) Sample() core.Controls { return f() }

// NetworkGameClient 把网络客户端、预测器和输入源串起来
type NetworkGameClient struct {
	network   *NetworkClient
	predictor *Predictor
	input     InputSource

	lastControls core.Controls
}

// NewNetworkGameClient network 必须已经 Connect
func NewNetworkGameClient(cfg config.Config, network *NetworkClient, world core.World) (*NetworkGameClient, error) {
	if !network.IsConnected() {
		return nil, ErrNotConnected
	}
	if rate := network.TickRate(); rate != 0 && rate != cfg.TickRateHz {
		return nil, fmt.Errorf("tick 频率不一致: 服务器 %d，本地 %d", rate, cfg.TickRateHz)
	}
	p := NewPredictor(cfg, world, network.ClientID(), core.DefaultSpawn(), network.Inbox(), network)
	return &NetworkGameClient{
		network:   network,
		predictor: p,
		input:     InputFunc(func() core.Controls { return core.Controls{} }),
	}, nil
}

func (ngc *NetworkGameClient) SetInput(src InputSource) {
	if src != nil {
		ngc.input = src
	}
}

func (ngc *NetworkGameClient) Predictor() *Predictor {
	return ngc.predictor
}

func (ngc *NetworkGameClient) Network() *NetworkClient {
	return ngc.network
}

// LastControls 最近一次采样的输入（渲染朝向、开火效果用）
func (ngc *NetworkGameClient) LastControls() core.Controls {
	return ngc.lastControls
}

// Step 一个固定 tick：检查连接、采样输入、预测
func (ngc *NetworkGameClient) Step() error {
	select {
	case err := <-ngc.network.Errors():
		return fmt.Errorf("连接断开: %w", err)
	default:
	}
	ngc.lastControls = ngc.input.Sample()
	ngc.predictor.Tick(ngc.lastControls)
	return nil
}

// RunHeadless 无界面运行，直到 ctx 取消或连接断开
func (ngc *NetworkGameClient) RunHeadless(ctx context.Context, tickRate int) error {
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	log.Printf("无界面模式: %d TPS", tickRate)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ngc.Step(); err != nil {
				return err
			}
		}
	}
}

// BotInput 用行为树驱动本地角色
type BotInput struct {
	bot       *ai.BotController
	predictor *Predictor
}

func NewBotInput(bot *ai.BotController, p *Predictor) *BotInput {
	return &BotInput{bot: bot, predictor: p}
}

func (b *BotInput) Sample() core.Controls {
	local := b.predictor.Local()
	return b.bot.Decide(ai.Observation{
		Position: local.Position,
		Velocity: local.State.Velocity,
		Grounded: local.State.Grounded,
	})
}
