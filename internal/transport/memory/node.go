package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// NodeEndpoint 进程内节点间传输
type NodeEndpoint struct {
	id    types.NodeID
	net   *Network
	inbox *inbox

	mu      sync.Mutex
	handler interfaces.NodeToNodeHandler
	peers   map[types.NodeID]struct{}
	closed  bool
}

var _ interfaces.NodeToNode = (*NodeEndpoint)(nil)

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

// Connect 连接 peer，双方都会收到 OnPeerConnected
func (e *NodeEndpoint) Connect(ctx context.Context, peer types.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if peer == e.id {
		return ErrSelfConnect
	}
	if e.isClosed() {
		return types.ErrTransportClosed
	}
	if e.IsConnected(peer) {
		return nil
	}

	remote := e.net.node(peer)
	if remote == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	if !e.addPeer(peer) {
		return nil
	}
	if !remote.addPeer(e.id) {
		// 对端已关闭或已经从另一侧建立
		if remote.isClosed() {
			e.removePeer(peer)
			return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
		}
	}
	return nil
}

// Disconnect 断开 peer，双方都会收到 OnPeerDisconnected
func (e *NodeEndpoint) Disconnect(peer types.NodeID, reason string) {
	if !e.removePeer(peer) {
		return
	}
	logger.Debug("disconnecting peer", "local", e.id, "peer", peer, "reason", reason)
	if remote := e.net.node(peer); remote != nil {
		remote.removePeer(e.id)
	}
}

// Send 发送数据消息；对端入队即视为送达
//
// 失败时返回 *types.SendError。
func (e *NodeEndpoint) Send(ctx context.Context, peer types.NodeID, msg *types.StreamMessage) error {
	if err := e.send(ctx, peer, msg); err != nil {
		return &types.SendError{Peer: peer, Cause: err}
	}
	return nil
}

func (e *NodeEndpoint) send(ctx context.Context, peer types.NodeID, msg *types.StreamMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.IsConnected(peer) {
		return types.ErrNotConnected
	}
	if e.net.isLinkDown(e.id, peer) {
		return fmt.Errorf("%w: %s -> %s", ErrLinkDown, e.id, peer)
	}
	remote := e.net.node(peer)
	if remote == nil {
		return types.ErrNotConnected
	}

	f, err := transfer(wire.DataFrame(msg))
	if err != nil {
		return err
	}
	source := e.id
	return remote.inbox.post(func() {
		if h := remote.currentHandler(); h != nil && remote.IsConnected(source) {
			h.OnData(f.Data, source)
		}
	})
}

// IsConnected 是否已连接 peer
func (e *NodeEndpoint) IsConnected(peer types.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.peers[peer]
	return ok
}

// Peers 当前连接的 peer（已排序）
func (e *NodeEndpoint) Peers() []types.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.NodeID, 0, len(e.peers))
	for p := range e.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close 断开所有 peer 并从网络注销
func (e *NodeEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	peers := make([]types.NodeID, 0, len(e.peers))
	for p := range e.peers {
		peers = append(peers, p)
	}
	e.peers = make(map[types.NodeID]struct{})
	e.mu.Unlock()

	e.net.removeNode(e.id)
	for _, p := range peers {
		if remote := e.net.node(p); remote != nil {
			remote.removePeer(e.id)
		}
	}
	e.inbox.close()
	return nil
}

func (e *NodeEndpoint) currentHandler() interfaces.NodeToNodeHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler
}

func (e *NodeEndpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// addPeer 记录连接并投递 OnPeerConnected；返回是否新增
func (e *NodeEndpoint) addPeer(peer types.NodeID) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if _, ok := e.peers[peer]; ok {
		e.mu.Unlock()
		return false
	}
	e.peers[peer] = struct{}{}
	e.mu.Unlock()

	_ = e.inbox.post(func() {
		if h := e.currentHandler(); h != nil {
			h.OnPeerConnected(peer)
		}
	})
	return true
}

// removePeer 移除连接并投递 OnPeerDisconnected；返回是否存在
func (e *NodeEndpoint) removePeer(peer types.NodeID) bool {
	e.mu.Lock()
	if _, ok := e.peers[peer]; !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.peers, peer)
	e.mu.Unlock()

	_ = e.inbox.post(func() {
		if h := e.currentHandler(); h != nil {
			h.OnPeerDisconnected(peer)
		}
	})
	return true
}
