package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"marsarena/internal/config"
	"marsarena/internal/server"
	"marsarena/pkg/transport"
)

func main() {
	// 命令行参数
	address := flag.String("addr", ":7000", "可靠通道监听地址")
	proto := flag.String("proto", transport.ProtoTCP, "可靠通道协议: tcp | kcp")
	udpAddr := flag.String("udp", ":7001", "UDP 监听地址，留空则全部走可靠通道")
	configPath := flag.String("config", "", "YAML 调参文件，留空使用默认值")
	journalDir := flag.String("journal", "", "tick 日志目录（zstd 压缩 JSONL）")
	dbPath := flag.String("db", "", "会话索引 SQLite 路径")
	observeAddr := flag.String("observe", "", "观察者 WebSocket 地址，如 :7080")
	flag.Parse()

	log.SetPrefix("[server] ")

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = loaded
	}

	gameServer := server.NewGameServer(cfg, server.Options{
		Addr:        *address,
		Proto:       *proto,
		UDPAddr:     *udpAddr,
		JournalDir:  *journalDir,
		IndexPath:   *dbPath,
		ObserveAddr: *observeAddr,
	})

	// 启动服务器（在新的 goroutine 中）
	go func() {
		if err := gameServer.Start(); err != nil {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	log.Println("========================================")
	log.Println("  Mars Arena 服务器")
	log.Println("========================================")
	log.Printf("可靠通道: %s (%s)", *address, *proto)
	log.Printf("UDP: %s", *udpAddr)
	log.Printf("最大客户端数: %d", cfg.Network.MaxClients)
	log.Printf("服务器 TPS: %d", cfg.TickRateHz)
	log.Println("========================================")
	log.Println("按 Ctrl+C 停止服务器")

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	gameServer.Shutdown()
	log.Println("服务器已关闭")
}
