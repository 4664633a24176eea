package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("transport/ws")

// TrackerServer websocket tracker 服务端
type TrackerServer struct {
	cfg      Config
	listener net.Listener
	srv      *http.Server
	upgrader *websocket.Upgrader

	mu      sync.Mutex
	handler interfaces.TrackerServerHandler
	conns   map[types.NodeID]*conn
	closed  bool
	wg      sync.WaitGroup
}

var _ interfaces.TrackerServer = (*TrackerServer)(nil)

// ListenTracker 在 addr 上监听并开始接受节点连接
//
// 回调在 SetHandler 之前到达的连接会被拒绝，调用方应立即设置回调。
func ListenTracker(cfg Config, addr string) (*TrackerServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ws: listen tracker %s: %w", addr, err)
	}

	s := &TrackerServer{
		cfg:      cfg,
		listener: ln,
		upgrader: cfg.upgrader(),
		conns:    make(map[types.NodeID]*conn),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(TrackerPath, s.serveWS)
	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.HandshakeTimeout,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("tracker server stopped", "err", err)
		}
	}()
	logger.Info("tracker listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr 实际监听地址
func (s *TrackerServer) Addr() string {
	return s.listener.Addr().String()
}

// URL 节点连接使用的地址
func (s *TrackerServer) URL() string {
	return "ws://" + s.Addr() + TrackerPath
}

// SetHandler 设置回调
func (s *TrackerServer) SetHandler(h interfaces.TrackerServerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SendInstruction 向节点发送指令
func (s *TrackerServer) SendInstruction(ctx context.Context, node types.NodeID, inst types.Instruction) error {
	s.mu.Lock()
	c := s.conns[node]
	s.mu.Unlock()
	if c == nil {
		return fmt.Errorf("%w: %s", types.ErrNotConnected, node)
	}
	return c.writeFrame(ctx, wire.InstructionFrame(&inst))
}

// Disconnect 断开节点；读循环退出时触发 OnNodeDisconnected
func (s *TrackerServer) Disconnect(node types.NodeID, reason string) {
	s.mu.Lock()
	c := s.conns[node]
	s.mu.Unlock()
	if c == nil {
		return
	}
	logger.Debug("disconnecting node", "node", node, "reason", reason)
	_ = c.close(websocket.ClosePolicyViolation, reason)
}

// ConnectedNodes 当前连接的节点数
func (s *TrackerServer) ConnectedNodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close 停止监听并断开所有节点
func (s *TrackerServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	err := s.srv.Close()
	for _, c := range conns {
		err = multierr.Append(err, c.close(websocket.CloseGoingAway, "tracker shutting down"))
	}
	s.wg.Wait()
	return err
}

func (s *TrackerServer) serveWS(w http.ResponseWriter, r *http.Request) {
	node := types.NodeID(r.Header.Get(HeaderNodeID))
	if node.IsEmpty() {
		http.Error(w, ErrMissingNodeID.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.closed || s.handler == nil {
		s.mu.Unlock()
		http.Error(w, "tracker not ready", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("upgrade failed", "node", node, "err", err)
		return
	}
	c := newConn(ws, s.cfg, string(node))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.close(websocket.CloseGoingAway, "tracker shutting down")
		return
	}
	old := s.conns[node]
	s.conns[node] = c
	h := s.handler
	s.mu.Unlock()

	if old != nil {
		// 同一节点重新连接，旧连接的读循环退出时不会再触发断开回调
		_ = old.close(websocket.CloseNormalClosure, "replaced")
	} else {
		h.OnNodeConnected(node)
	}

	s.readLoop(node, c, h)
}

func (s *TrackerServer) readLoop(node types.NodeID, c *conn, h interfaces.TrackerServerHandler) {
	defer func() {
		_ = c.close(websocket.CloseNormalClosure, "")

		s.mu.Lock()
		current := s.conns[node] == c
		if current {
			delete(s.conns, node)
		}
		s.mu.Unlock()

		if current {
			h.OnNodeDisconnected(node)
		}
	}()

	for {
		f, err := c.readFrame()
		if err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) || errors.Is(err, wire.ErrUnknownFrameType) {
				logger.Warn("malformed frame from node", "node", node, "err", err)
				_ = c.writeFrame(context.Background(), wire.ErrorFrame(wire.ErrorCodeMalformedFrame, err.Error()))
			}
			return
		}

		switch f.Type {
		case wire.FrameStatus:
			h.OnStatus(*f.Status, node)
		case wire.FrameError:
			logger.Warn("node reported error", "node", node, "code", f.Error.Code, "message", f.Error.Message)
		default:
			logger.Warn("unexpected frame from node", "node", node, "type", f.Type)
		}
	}
}
