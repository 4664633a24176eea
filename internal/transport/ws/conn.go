package ws

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
)

// conn 一条 websocket 连接
//
// 写操作串行化；读操作只在所属的读 goroutine 中进行。
type conn struct {
	ws  *websocket.Conn
	cfg Config

	// initiator 发起拨号的一方
	initiator string

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}

	// rtt 最近一次 ping 的往返时延（毫秒），-1 表示未知
	rtt atomic.Int64
}

func newConn(ws *websocket.Conn, cfg Config, initiator string) *conn {
	c := &conn{
		ws:        ws,
		cfg:       cfg,
		initiator: initiator,
		done:      make(chan struct{}),
	}
	c.rtt.Store(-1)

	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(cfg.pongWait()))
		ws.SetPongHandler(c.onPong)
		go c.pingLoop()
	}
	return c
}

// writeFrame 编码并写出一个帧
func (c *conn) writeFrame(ctx context.Context, f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// readFrame 读取下一个二进制帧，跳过文本消息
func (c *conn) readFrame() (wire.Frame, error) {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return wire.Frame{}, err
		}
		if c.cfg.PingInterval > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return wire.Decode(data)
	}
}

// close 发送关闭帧并关闭底层连接；可重复调用
func (c *conn) close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// RTT 最近一次测得的往返时延（毫秒）
func (c *conn) RTT() (int64, bool) {
	v := c.rtt.Load()
	return v, v >= 0
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			payload := make([]byte, 8)
			binary.BigEndian.PutUint64(payload, uint64(now.UnixNano()))
			if err := c.ws.WriteControl(websocket.PingMessage, payload, now.Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *conn) onPong(payload string) error {
	if c.cfg.PingInterval > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
	}
	if len(payload) != 8 {
		return nil
	}
	sent := time.Unix(0, int64(binary.BigEndian.Uint64([]byte(payload))))
	if rtt := time.Since(sent); rtt >= 0 {
		c.rtt.Store(rtt.Milliseconds())
	}
	return nil
}
