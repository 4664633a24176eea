package memory

import (
	"fmt"
	"sync"

	"github.com/dep2p/go-overlay/internal/protocol/wire"
	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("transport/memory")

type link struct {
	from, to types.NodeID
}

// Network 进程内网络
type Network struct {
	mu       sync.Mutex
	nodes    map[types.NodeID]*NodeEndpoint
	trackers map[string]*TrackerServer
	down     map[link]struct{}
}

// NewNetwork 创建进程内网络
func NewNetwork() *Network {
	return &Network{
		nodes:    make(map[types.NodeID]*NodeEndpoint),
		trackers: make(map[string]*TrackerServer),
		down:     make(map[link]struct{}),
	}
}

// NewNodeEndpoint 注册节点端点
func (n *Network) NewNodeEndpoint(id types.NodeID) (*NodeEndpoint, error) {
	if id.IsEmpty() {
		return nil, types.ErrEmptyNodeID
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ep := &NodeEndpoint{
		id:    id,
		net:   n,
		inbox: newInbox(),
		peers: make(map[types.NodeID]struct{}),
	}
	n.nodes[id] = ep
	return ep, nil
}

// NewTrackerServer 注册 tracker 服务端
func (n *Network) NewTrackerServer(id string) (*TrackerServer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.trackers[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	s := &TrackerServer{
		id:      id,
		net:     n,
		inbox:   newInbox(),
		clients: make(map[types.NodeID]*TrackerClient),
	}
	n.trackers[id] = s
	return s, nil
}

// NewTrackerClient 创建连接到 tracker 的节点侧客户端
func (n *Network) NewTrackerClient(node types.NodeID, tracker string) *TrackerClient {
	return &TrackerClient{
		node:    node,
		tracker: tracker,
		net:     n,
		inbox:   newInbox(),
	}
}

// SetLinkDown 注入 from→to 方向的发送失败（连接仍保持）
func (n *Network) SetLinkDown(from, to types.NodeID, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l := link{from: from, to: to}
	if down {
		n.down[l] = struct{}{}
	} else {
		delete(n.down, l)
	}
}

func (n *Network) isLinkDown(from, to types.NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.down[link{from: from, to: to}]
	return ok
}

func (n *Network) node(id types.NodeID) *NodeEndpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[id]
}

func (n *Network) tracker(id string) *TrackerServer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.trackers[id]
}

func (n *Network) removeNode(id types.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

func (n *Network) removeTracker(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.trackers, id)
}

// transfer 模拟线上传输：编码后再解码，接收方拿到独立的副本
func transfer(f wire.Frame) (wire.Frame, error) {
	data, err := wire.Encode(f)
	if err != nil {
		return wire.Frame{}, err
	}
	return wire.Decode(data)
}
