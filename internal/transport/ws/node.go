package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// NodeEndpoint websocket 节点间传输
type NodeEndpoint struct {
	id       types.NodeID
	cfg      Config
	listener net.Listener
	srv      *http.Server
	upgrader *websocket.Upgrader
	dialer   *websocket.Dialer

	mu      sync.Mutex
	handler interfaces.NodeToNodeHandler
	conns   map[types.NodeID]*conn
	closed  bool
	wg      sync.WaitGroup
}

var (
	_ interfaces.NodeToNode  = (*NodeEndpoint)(nil)
	_ interfaces.RttReporter = (*NodeEndpoint)(nil)
)

// ListenNode 在 addr 上监听节点连接
//
// id 为空时使用实际监听地址作为节点 ID。
func ListenNode(cfg Config, addr string, id types.NodeID) (*NodeEndpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ws: listen node %s: %w", addr, err)
	}
	if id.IsEmpty() {
		id = types.NodeID(ln.Addr().String())
	}

	e := &NodeEndpoint{
		id:       id,
		cfg:      cfg,
		listener: ln,
		upgrader: cfg.upgrader(),
		dialer:   cfg.dialer(),
		conns:    make(map[types.NodeID]*conn),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(NodePath, e.serveWS)
	e.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.HandshakeTimeout,
	}

	go func() {
		if err := e.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("node server stopped", "node", id, "err", err)
		}
	}()
	logger.Info("node listening", "node", id, "addr", ln.Addr().String())
	return e, nil
}

// LocalID 本地节点 ID
func (e *NodeEndpoint) LocalID() types.NodeID {
	return e.id
}

// SetHandler 设置回调
func (e *NodeEndpoint) SetHandler(h interfaces.NodeToNodeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Connect 拨号 ws://<peer>/node
func (e *NodeEndpoint) Connect(ctx context.Context, peer types.NodeID) error {
	if peer == e.id {
		return ErrSelfConnect
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return types.ErrTransportClosed
	}
	_, ok := e.conns[peer]
	e.mu.Unlock()
	if ok {
		return nil
	}

	header := http.Header{}
	header.Set(HeaderNodeID, string(e.id))
	ws, resp, err := e.dialer.DialContext(ctx, "ws://"+string(peer)+NodePath, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", peer, err)
	}

	c := newConn(ws, e.cfg, string(e.id))
	if !e.register(peer, c) {
		_ = c.close(websocket.CloseNormalClosure, "duplicate")
		if !e.IsConnected(peer) {
			return types.ErrTransportClosed
		}
		return nil
	}
	go e.readLoop(peer, c)
	return nil
}

// Disconnect 断开 peer
func (e *NodeEndpoint) Disconnect(peer types.NodeID, reason string) {
	e.mu.Lock()
	c := e.conns[peer]
	delete(e.conns, peer)
	h := e.handler
	e.mu.Unlock()
	if c == nil {
		return
	}

	logger.Debug("disconnecting peer", "node", e.id, "peer", peer, "reason", reason)
	_ = c.close(websocket.CloseNormalClosure, reason)
	if h != nil {
		h.OnPeerDisconnected(peer)
	}
}

// Send 向 peer 发送数据帧；写入完成即视为送达
//
// 失败时返回 *types.SendError。
func (e *NodeEndpoint) Send(ctx context.Context, peer types.NodeID, msg *types.StreamMessage) error {
	e.mu.Lock()
	c := e.conns[peer]
	e.mu.Unlock()
	if c == nil {
		return &types.SendError{Peer: peer, Cause: types.ErrNotConnected}
	}
	if err := c.writeFrame(ctx, wire.DataFrame(msg)); err != nil {
		return &types.SendError{Peer: peer, Cause: err}
	}
	return nil
}

// IsConnected 是否已连接 peer
func (e *NodeEndpoint) IsConnected(peer types.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.conns[peer]
	return ok
}

// Peers 当前连接的 peer（已排序）
func (e *NodeEndpoint) Peers() []types.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.NodeID, 0, len(e.conns))
	for p := range e.conns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rtts 各 peer 最近一次测得的往返时延（毫秒）
func (e *NodeEndpoint) Rtts() map[types.NodeID]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[types.NodeID]int64, len(e.conns))
	for p, c := range e.conns {
		if rtt, ok := c.RTT(); ok {
			out[p] = rtt
		}
	}
	return out
}

// Close 停止监听并断开所有 peer
func (e *NodeEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := e.conns
	e.conns = make(map[types.NodeID]*conn)
	e.mu.Unlock()

	err := e.srv.Close()
	for _, c := range conns {
		err = multierr.Append(err, c.close(websocket.CloseGoingAway, "node shutting down"))
	}
	e.wg.Wait()
	return err
}

func (e *NodeEndpoint) serveWS(w http.ResponseWriter, r *http.Request) {
	peer := types.NodeID(r.Header.Get(HeaderNodeID))
	if peer.IsEmpty() {
		http.Error(w, ErrMissingNodeID.Error(), http.StatusBadRequest)
		return
	}
	if peer == e.id {
		http.Error(w, ErrSelfConnect.Error(), http.StatusBadRequest)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("upgrade failed", "node", e.id, "peer", peer, "err", err)
		return
	}
	c := newConn(ws, e.cfg, string(peer))
	if !e.register(peer, c) {
		_ = c.close(websocket.CloseNormalClosure, "duplicate")
		return
	}
	e.readLoop(peer, c)
}

// register 登记连接；与已有连接冲突时保留较小 ID 发起的那条
//
// 返回 false 表示新连接被丢弃。首次连接时触发 OnPeerConnected。
func (e *NodeEndpoint) register(peer types.NodeID, c *conn) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}

	old := e.conns[peer]
	if old != nil && !preferNew(e.id, peer, old, c) {
		e.mu.Unlock()
		return false
	}
	e.conns[peer] = c
	e.wg.Add(1)
	h := e.handler
	e.mu.Unlock()

	if old != nil {
		_ = old.close(websocket.CloseNormalClosure, "replaced")
		return true
	}
	if h != nil {
		h.OnPeerConnected(peer)
	}
	return true
}

// preferNew 两条连接冲突时是否用新连接替换旧连接
func preferNew(local, peer types.NodeID, old, c *conn) bool {
	preferred := string(local)
	if peer < local {
		preferred = string(peer)
	}
	if old.initiator == preferred && c.initiator != preferred {
		return false
	}
	return true
}

func (e *NodeEndpoint) readLoop(peer types.NodeID, c *conn) {
	defer e.wg.Done()
	defer func() {
		_ = c.close(websocket.CloseNormalClosure, "")

		e.mu.Lock()
		current := e.conns[peer] == c
		if current {
			delete(e.conns, peer)
		}
		h := e.handler
		e.mu.Unlock()

		if current && h != nil {
			h.OnPeerDisconnected(peer)
		}
	}()

	for {
		f, err := c.readFrame()
		if err != nil {
			if errors.Is(err, wire.ErrMalformedFrame) || errors.Is(err, wire.ErrUnknownFrameType) {
				logger.Warn("malformed frame from peer", "node", e.id, "peer", peer, "err", err)
			}
			return
		}

		switch f.Type {
		case wire.FrameData:
			e.mu.Lock()
			h := e.handler
			e.mu.Unlock()
			if h != nil {
				h.OnData(f.Data, peer)
			}
		case wire.FrameError:
			logger.Warn("peer reported error", "node", e.id, "peer", peer, "code", f.Error.Code, "message", f.Error.Message)
		default:
			logger.Warn("unexpected frame from peer", "node", e.id, "peer", peer, "type", f.Type)
		}
	}
}
