package tracker

import (
	"context"
	"sync"

	"github.com/dep2p/go-overlay/pkg/interfaces"
	"github.com/dep2p/go-overlay/pkg/types"
)

// MockServer 记录发送的指令与断开请求的 TrackerServer
type MockServer struct {
	mu           sync.Mutex
	handler      interfaces.TrackerServerHandler
	sent         []types.Instruction
	disconnected []types.NodeID
	sendErr      error
	closed       bool
}

var _ interfaces.TrackerServer = (*MockServer)(nil)

// NewMockServer 创建 MockServer
func NewMockServer() *MockServer {
	return &MockServer{}
}

// SendInstruction 记录指令
func (m *MockServer) SendInstruction(_ context.Context, _ types.NodeID, inst types.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, inst)
	return nil
}

// Disconnect 记录断开
func (m *MockServer) Disconnect(node types.NodeID, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, node)
}

// SetHandler 设置回调
func (m *MockServer) SetHandler(h interfaces.TrackerServerHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Close 关闭
func (m *MockServer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetSendError 使后续发送失败
func (m *MockServer) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Sent 已发送的指令
func (m *MockServer) Sent() []types.Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Instruction(nil), m.sent...)
}

// Latest 每个节点最后收到的指令
func (m *MockServer) Latest() map[types.NodeID]types.Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.NodeID]types.Instruction)
	for _, inst := range m.sent {
		out[inst.NodeID] = inst
	}
	return out
}

// Reset 清空已发送记录
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Disconnected 被要求断开的节点
func (m *MockServer) Disconnected() []types.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.NodeID(nil), m.disconnected...)
}

// Handler 当前回调
func (m *MockServer) Handler() interfaces.TrackerServerHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}
