package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// TrackerClient 节点侧 tracker 连接
//
// 连接断开后不自动重连，由节点按自己的节奏调用 Connect。
type TrackerClient struct {
	cfg    Config
	node   types.NodeID
	url    string
	dialer *websocket.Dialer

	mu      sync.Mutex
	handler interfaces.NodeToTrackerHandler
	conn    *conn
	closed  bool
	wg      sync.WaitGroup
}

var _ interfaces.NodeToTracker = (*TrackerClient)(nil)

// NewTrackerClient 创建 tracker 客户端；url 形如 ws://host:port/tracker
func NewTrackerClient(cfg Config, node types.NodeID, url string) *TrackerClient {
	return &TrackerClient{
		cfg:    cfg,
		node:   node,
		url:    url,
		dialer: cfg.dialer(),
	}
}

// SetHandler 设置回调
func (c *TrackerClient) SetHandler(h interfaces.NodeToTrackerHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect 连接 tracker；已连接时直接返回
func (c *TrackerClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrTransportClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set(HeaderNodeID, string(c.node))
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("ws: dial tracker %s: %w", c.url, err)
	}
	conn := newConn(ws, c.cfg, string(c.node))

	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		_ = conn.close(websocket.CloseNormalClosure, "")
		if c.closed {
			return types.ErrTransportClosed
		}
		return nil
	}
	c.conn = conn
	h := c.handler
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readLoop(conn, h)
	if h != nil {
		h.OnTrackerConnected()
	}
	return nil
}

// SendStatus 上报状态
func (c *TrackerClient) SendStatus(ctx context.Context, status types.Status) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: tracker %s", types.ErrNotConnected, c.url)
	}
	return conn.writeFrame(ctx, wire.StatusFrame(&status))
}

// Close 断开 tracker，不触发 OnTrackerDisconnected
func (c *TrackerClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.close(websocket.CloseNormalClosure, "node shutting down")
	}
	c.wg.Wait()
	return err
}

func (c *TrackerClient) readLoop(conn *conn, h interfaces.NodeToTrackerHandler) {
	defer c.wg.Done()
	defer func() {
		_ = conn.close(websocket.CloseNormalClosure, "")

		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.conn = nil
		}
		c.mu.Unlock()

		if current && h != nil {
			h.OnTrackerDisconnected()
		}
	}()

	for {
		f, err := conn.readFrame()
		if err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) || errors.Is(err, wire.ErrUnknownFrameType) {
				logger.Warn("malformed frame from tracker", "err", err)
			}
			return
		}

		switch f.Type {
		case wire.FrameInstruction:
			if h != nil {
				h.OnInstruction(*f.Instruction)
			}
		case wire.FrameError:
			logger.Warn("tracker reported error", "code", f.Error.Code, "message", f.Error.Message)
		default:
			logger.Warn("unexpected frame from tracker", "type", f.Type)
		}
	}
}
