// Package main 提供 overlay 节点命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/dep2p/go-overlay"
	"github.com/dep2p/go-overlay/config"
	"github.com/dep2p/go-overlay/internal/util/logger"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var cmdLogger = log.Logger("cmd/node")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile     = flag.String("config", "", "配置文件路径（JSON）")
	nodeID         = flag.String("id", "", "节点 ID，即对端可拨号的 host:port（默认由 -listen 推导）")
	listenAddr     = flag.String("listen", "", "节点间 websocket 监听地址，例如 :30400")
	trackerURL     = flag.String("tracker", "", "tracker 地址，例如 ws://127.0.0.1:30300/tracker")
	streams        = flag.String("streams", "", "加入的流分区，逗号分隔，例如 sensors#0,sensors#1")
	publishEvery   = flag.Duration("publish-interval", 0, "向每个流分区发布测试消息的间隔（0 = 不发布）")
	publisherID    = flag.String("publisher", "", "发布者 ID（默认随机生成）")
	introspectAddr = flag.String("introspect", "", "自省服务监听地址（设置即启用）")
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
	parts, err := parseStreamParts(*streams)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	n, err := overlay.NewNode(cfg)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = n.Close() }()

	for _, sp := range parts {
		if err := n.Subscribe(sp); err != nil {
			return fmt.Errorf("加入流分区 %s 失败: %w", sp, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	cmdLogger.Info("node started",
		"id", n.ID(),
		"tracker", cfg.TrackerURL,
		"streamParts", len(parts),
		"introspect", n.IntrospectAddr())

	go logUnseenMessages(ctx, n)
	if *publishEvery > 0 {
		publisher := *publisherID
		if publisher == "" {
			publisher = uuid.NewString()
		}
		for _, sp := range parts {
			go newChainPublisher(n, sp, publisher).run(ctx, *publishEvery)
		}
	}

	fmt.Printf("节点 %s 已启动，按 Ctrl+C 退出\n", n.ID())
	waitForSignal()
	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildConfig 构建配置
//
// 优先级：命令行参数 > 配置文件 > 默认值。
func buildConfig() (*config.NodeConfig, error) {
	cfg := config.NewNodeConfig()
	if *configFile != "" {
		loaded, err := config.LoadNodeConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if isFlagSet("listen") {
		cfg.ListenAddr = *listenAddr
	}
	if isFlagSet("tracker") {
		cfg.TrackerURL = *trackerURL
	}
	if isFlagSet("id") {
		cfg.ID = *nodeID
	}
	if isFlagSet("introspect") {
		cfg.Diagnostics.EnableIntrospect = true
		cfg.Diagnostics.IntrospectAddr = *introspectAddr
	}

	id, err := resolveNodeID(cfg.ID, cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	cfg.ID = id
	return cfg, cfg.Validate()
}

// resolveNodeID 节点 ID 为空时由监听地址推导
//
// 监听地址未指定主机时使用回环地址；端口必须显式给出。
func resolveNodeID(id, listen string) (string, error) {
	if id != "" {
		return id, nil
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	if port == "" || port == "0" {
		return "", fmt.Errorf("listen address %q needs a fixed port to derive the node id", listen)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

// parseStreamParts 解析逗号分隔的 "stream#partition" 列表，忽略空项与重复项
func parseStreamParts(s string) ([]types.StreamPartID, error) {
	keys := funk.Map(strings.Split(s, ","), strings.TrimSpace).([]string)
	keys = funk.Filter(keys, func(k string) bool { return k != "" }).([]string)

	out := make([]types.StreamPartID, 0, len(keys))
	for _, key := range funk.UniqString(keys) {
		sp, err := types.ParseStreamPartID(key)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

// logUnseenMessages 记录首次出现的消息
func logUnseenMessages(ctx context.Context, n *overlay.Node) {
	sub, err := n.Events(types.EventUnseenMessageReceived)
	if err != nil {
		cmdLogger.Warn("subscribe events failed", "err", err)
		return
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Out():
			if !ok {
				return
			}
			e := ev.(*types.UnseenMessageReceivedEvent)
			latency, _ := n.AverageLatency()
			cmdLogger.Info("message received",
				"msg", e.Message.ID,
				"bytes", len(e.Message.Content),
				"avgLatencyMs", latency)
		}
	}
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

// nowMillis 便于测试替换
var nowMillis = func() int64 { return time.Now().UnixMilli() }
