package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// ============================================================================
//                              TrackerServer
// ============================================================================

// TrackerServer 进程内 tracker 服务端
type TrackerServer struct {
	id    string
	net   *Network
	inbox *inbox

	mu      sync.Mutex
	handler interfaces.TrackerServerHandler
	clients map[types.NodeID]*TrackerClient
	closed  bool
}

var _ interfaces.TrackerServer = (*TrackerServer)(nil)

// SetHandler 设置回调
func (s *TrackerServer) SetHandler(h interfaces.TrackerServerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SendInstruction 向节点发送指令
func (s *TrackerServer) SendInstruction(ctx context.Context, node types.NodeID, inst types.Instruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	c, ok := s.clients[node]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotConnected, node)
	}

	f, err := transfer(wire.InstructionFrame(&inst))
	if err != nil {
		return err
	}
	return c.inbox.post(func() {
		if h := c.currentHandler(); h != nil && c.isConnectedTo(s) {
			h.OnInstruction(*f.Instruction)
		}
	})
}

// Disconnect 断开节点；双方都会收到断开回调
func (s *TrackerServer) Disconnect(node types.NodeID, reason string) {
	s.mu.Lock()
	c, ok := s.clients[node]
	s.mu.Unlock()
	if !ok {
		return
	}
	logger.Debug("tracker disconnecting node", "tracker", s.id, "node", node, "reason", reason)
	c.detach(true)
}

// ConnectedNodes 当前连接的节点数
func (s *TrackerServer) ConnectedNodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close 断开所有节点并从网络注销
func (s *TrackerServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := make([]*TrackerClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.net.removeTracker(s.id)
	for _, c := range clients {
		c.detach(true)
	}
	s.inbox.close()
	return nil
}

func (s *TrackerServer) currentHandler() interfaces.TrackerServerHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

func (s *TrackerServer) attach(c *TrackerClient) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.ErrTransportClosed
	}
	s.clients[c.node] = c
	s.mu.Unlock()

	node := c.node
	return s.inbox.post(func() {
		if h := s.currentHandler(); h != nil {
			h.OnNodeConnected(node)
		}
	})
}

func (s *TrackerServer) remove(c *TrackerClient) {
	s.mu.Lock()
	if s.clients[c.node] != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.node)
	s.mu.Unlock()

	node := c.node
	_ = s.inbox.post(func() {
		if h := s.currentHandler(); h != nil {
			h.OnNodeDisconnected(node)
		}
	})
}

// ============================================================================
//                              TrackerClient
// ============================================================================

// TrackerClient 进程内节点侧 tracker 连接
type TrackerClient struct {
	node    types.NodeID
	tracker string
	net     *Network
	inbox   *inbox

	mu      sync.Mutex
	handler interfaces.NodeToTrackerHandler
	server  *TrackerServer
}

var _ interfaces.NodeToTracker = (*TrackerClient)(nil)

// SetHandler 设置回调
func (c *TrackerClient) SetHandler(h interfaces.NodeToTrackerHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect 连接 tracker；已连接时直接返回
func (c *TrackerClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.server != nil {
		c.mu.Unlock()
		return nil
	}
	s := c.net.tracker(c.tracker)
	if s == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: tracker %s", ErrUnknownPeer, c.tracker)
	}
	c.server = s
	c.mu.Unlock()

	if err := s.attach(c); err != nil {
		c.mu.Lock()
		c.server = nil
		c.mu.Unlock()
		return err
	}
	return c.inbox.post(func() {
		if h := c.currentHandler(); h != nil {
			h.OnTrackerConnected()
		}
	})
}

// SendStatus 上报状态
func (c *TrackerClient) SendStatus(ctx context.Context, status types.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	s := c.server
	c.mu.Unlock()
	if s == nil {
		return fmt.Errorf("%w: tracker %s", types.ErrNotConnected, c.tracker)
	}

	f, err := transfer(wire.StatusFrame(&status))
	if err != nil {
		return err
	}
	node := c.node
	return s.inbox.post(func() {
		if h := s.currentHandler(); h != nil {
			h.OnStatus(*f.Status, node)
		}
	})
}

// Close 断开 tracker
func (c *TrackerClient) Close() error {
	c.detach(false)
	c.inbox.close()
	return nil
}

func (c *TrackerClient) currentHandler() interfaces.NodeToTrackerHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *TrackerClient) isConnectedTo(s *TrackerServer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server == s
}

// detach 断开与服务端的关联；notify 为 true 时通知本地回调
func (c *TrackerClient) detach(notify bool) {
	c.mu.Lock()
	s := c.server
	c.server = nil
	c.mu.Unlock()
	if s == nil {
		return
	}

	s.remove(c)
	if notify {
		_ = c.inbox.post(func() {
			if h := c.currentHandler(); h != nil {
				h.OnTrackerDisconnected()
			}
		})
	}
}
