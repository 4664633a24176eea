package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-overlay/config"
)

const (
	// TrackerPath tracker 监听路径
	TrackerPath = "/tracker"

	// NodePath 节点监听路径
	NodePath = "/node"

	// HeaderNodeID 握手请求中声明节点 ID 的请求头
	HeaderNodeID = "X-Overlay-Node-Id"
)

// Config websocket 传输配置
type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	EnableCompression bool
	WriteTimeout      time.Duration

	// PingInterval 为 0 时不发送 ping，也不设置读超时
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.DefaultWebSocketConfig())
}

// ConfigFromUnified 从统一配置创建
func ConfigFromUnified(c config.WebSocketConfig) Config {
	return Config{
		ReadBufferSize:    c.ReadBufferSize,
		WriteBufferSize:   c.WriteBufferSize,
		HandshakeTimeout:  c.HandshakeTimeout.Duration(),
		EnableCompression: c.EnableCompression,
		WriteTimeout:      c.WriteTimeout.Duration(),
		PingInterval:      c.PingInterval.Duration(),
		MaxMessageSize:    c.MaxMessageSize,
	}
}

func (c Config) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:    c.ReadBufferSize,
		WriteBufferSize:   c.WriteBufferSize,
		HandshakeTimeout:  c.HandshakeTimeout,
		EnableCompression: c.EnableCompression,
		// 不校验 Origin
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

func (c Config) dialer() *websocket.Dialer {
	return &websocket.Dialer{
		ReadBufferSize:    c.ReadBufferSize,
		WriteBufferSize:   c.WriteBufferSize,
		HandshakeTimeout:  c.HandshakeTimeout,
		EnableCompression: c.EnableCompression,
	}
}

// pongWait 读超时：连续两个 ping 周期没有任何数据即认为连接已断
func (c Config) pongWait() time.Duration {
	return 2*c.PingInterval + c.WriteTimeout
}
