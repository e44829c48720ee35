package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marsarena/internal/client"
	"marsarena/internal/config"
	"marsarena/internal/viewer"
	"marsarena/pkg/ai"
	"marsarena/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	address := flag.String("addr", "127.0.0.1:7000", "服务器地址")
	proto := flag.String("proto", "tcp", "可靠通道协议: tcp | kcp")
	name := flag.String("name", "", "用户名")
	configPath := flag.String("config", "", "YAML 调参文件，需与服务器一致")
	headless := flag.Bool("headless", false, "无界面运行，由机器人控制")
	aggressive := flag.Bool("aggressive", false, "机器人使用好斗配置")
	arrows := flag.Bool("arrows", false, "使用方向键方案")
	flag.Parse()

	log.SetPrefix("[client] ")

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = loaded
	}

	username := *name
	if username == "" {
		username = fmt.Sprintf("pilot-%d", time.Now().UnixNano()%10000)
	}

	network := client.NewNetworkClient(*address, *proto, username)
	if err := network.Connect(); err != nil {
		log.Fatalf("连接失败: %v", err)
	}
	defer network.Close()

	world := core.DefaultArena()
	game, err := client.NewNetworkGameClient(cfg, network, world)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	if *headless {
		botCfg := &ai.BotConfigNormal
		if *aggressive {
			botCfg = &ai.BotConfigAggressive
		}
		bot := ai.NewBotController(network.ClientID(), botCfg, time.Now().UnixNano())
		game.SetInput(client.NewBotInput(bot, game.Predictor()))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := game.RunHeadless(ctx, cfg.TickRateHz); err != nil {
			log.Printf("退出: %v", err)
		}
		return
	}

	scheme := viewer.ControlWASD
	if *arrows {
		scheme = viewer.ControlArrow
	}
	game.SetInput(viewer.NewKeyboardInput(scheme, cfg.TickRateHz))

	// 设置窗口选项
	ebiten.SetWindowSize(viewer.ScreenWidth, viewer.ScreenHeight)
	ebiten.SetWindowTitle(fmt.Sprintf("Mars Arena [%s] [%s]", username, scheme))
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	ebiten.SetTPS(cfg.TickRateHz)

	if err := ebiten.RunGame(viewer.NewViewer(game, world, scheme)); err != nil {
		log.Printf("退出: %v", err)
	}
}
