// Package main 提供 overlay tracker 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-overlay"
	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/util/logger"
	"github.com/dep2p/go-overlay/pkg/lib/log"
)

var cmdLogger = log.Logger("cmd/tracker")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖（「这次运行」想怎么跑）
//   JSON 配置文件：持久化配置
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile     = flag.String("config", "", "配置文件路径（JSON）")
	listenAddr     = flag.String("listen", "", "websocket 监听地址，例如 :30300")
	maxNeighbors   = flag.Int("max-neighbors", 0, "每个节点在单个流分区上的最大邻居数")
	introspectAddr = flag.String("introspect", "", "自省服务监听地址（设置即启用）")
	reportEvery    = flag.Duration("report-interval", 0, "在标准输出打印拓扑表的间隔（0 = 不打印）")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	logger.Install(os.Stderr, logger.ConfigFromEnv())

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	tr, err := overlay.NewTracker(cfg)
	if err != nil {
		return fmt.Errorf("创建 tracker 失败: %w", err)
	}
	defer func() { _ = tr.Close() }()

	if err := tr.Start(context.Background()); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	cmdLogger.Info("tracker started",
		"url", tr.URL(),
		"maxNeighbors", cfg.Topology.MaxNeighborsPerNode,
		"introspect", tr.IntrospectAddr())
	fmt.Printf("tracker 已启动: %s，按 Ctrl+C 退出\n", tr.URL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *reportEvery > 0 {
		go reportLoop(ctx, os.Stdout, tr, *reportEvery)
	}

	waitForSignal()
	fmt.Println("\n正在关闭 tracker...")
	return nil
}

// buildConfig 构建配置
//
// 优先级：命令行参数 > 配置文件 > 默认值。
func buildConfig() (*config.TrackerConfig, error) {
	cfg := config.NewTrackerConfig()
	if *configFile != "" {
		loaded, err := config.LoadTrackerConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if isFlagSet("listen") {
		cfg.ListenAddr = *listenAddr
	}
	if isFlagSet("max-neighbors") {
		cfg.Topology.MaxNeighborsPerNode = *maxNeighbors
	}
	if isFlagSet("introspect") {
		cfg.Diagnostics.EnableIntrospect = true
		cfg.Diagnostics.IntrospectAddr = *introspectAddr
	}
	return cfg, cfg.Validate()
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
