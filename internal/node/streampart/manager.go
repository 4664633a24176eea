// Package streampart 实现节点侧的流分区成员表
//
// 每个节点持有一个 Manager，按流分区保存：
//   - 邻居集合
//   - 最近应用的指令计数器
//   - 按 (发布者, 消息链) 划分的重复/缺口检测器
//
// Manager 是显式的注册表对象，没有任何包级全局状态。
package streampart

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-overlay/internal/node/dedup"
	"github.com/dep2p/go-overlay/pkg/types"
)

// 错误定义
var (
	// ErrNotSetUp 流分区未建立
	ErrNotSetUp = errors.New("streampart: stream part is not set up")

	// ErrAlreadySetUp 流分区已建立
	ErrAlreadySetUp = errors.New("streampart: stream part already set up")
)

// detectorKey 检测器键
type detectorKey struct {
	publisherID string
	msgChainID  string
}

// streamPart 单个流分区的状态
type streamPart struct {
	neighbors map[types.NodeID]struct{}
	counter   int64
	detectors map[detectorKey]*dedup.Detector
}

// Manager 流分区成员表
type Manager struct {
	mu    sync.RWMutex
	parts map[types.StreamPartID]*streamPart
}

// NewManager 创建成员表
func NewManager() *Manager {
	return &Manager{
		parts: make(map[types.StreamPartID]*streamPart),
	}
}

// SetUp 建立流分区
func (m *Manager) SetUp(sp types.StreamPartID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.parts[sp]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySetUp, sp)
	}
	m.parts[sp] = &streamPart{
		neighbors: make(map[types.NodeID]struct{}),
		detectors: make(map[detectorKey]*dedup.Detector),
	}
	return nil
}

// IsSetUp 检查流分区是否已建立
func (m *Manager) IsSetUp(sp types.StreamPartID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.parts[sp]
	return ok
}

// Remove 移除流分区，返回移除前的邻居
func (m *Manager) Remove(sp types.StreamPartID) []types.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.parts[sp]
	if !ok {
		return nil
	}
	delete(m.parts, sp)
	return sortedNodes(part.neighbors)
}

// AddNeighbor 添加邻居
func (m *Manager) AddNeighbor(sp types.StreamPartID, node types.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.parts[sp]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSetUp, sp)
	}
	part.neighbors[node] = struct{}{}
	return nil
}

// RemoveNeighbor 移除邻居，返回邻居此前是否存在
func (m *Manager) RemoveNeighbor(sp types.StreamPartID, node types.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.parts[sp]
	if !ok {
		return false
	}
	if _, ok := part.neighbors[node]; !ok {
		return false
	}
	delete(part.neighbors, node)
	return true
}

// RemoveNodeFromAll 从所有流分区移除节点，返回受影响的流分区
func (m *Manager) RemoveNodeFromAll(node types.NodeID) []types.StreamPartID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []types.StreamPartID
	for sp, part := range m.parts {
		if _, ok := part.neighbors[node]; ok {
			delete(part.neighbors, node)
			affected = append(affected, sp)
		}
	}
	sortStreamParts(affected)
	return affected
}

// Neighbors 返回流分区的邻居（有序）
func (m *Manager) Neighbors(sp types.StreamPartID) []types.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, ok := m.parts[sp]
	if !ok {
		return nil
	}
	return sortedNodes(part.neighbors)
}

// HasNeighbor 检查节点是否为流分区邻居
func (m *Manager) HasNeighbor(sp types.StreamPartID, node types.NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, ok := m.parts[sp]
	if !ok {
		return false
	}
	_, ok = part.neighbors[node]
	return ok
}

// IsNodePresent 节点是否出现在任一流分区中
func (m *Manager) IsNodePresent(node types.NodeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, part := range m.parts {
		if _, ok := part.neighbors[node]; ok {
			return true
		}
	}
	return false
}

// UpdateCounter 记录最近应用的指令计数器
func (m *Manager) UpdateCounter(sp types.StreamPartID, counter int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.parts[sp]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSetUp, sp)
	}
	part.counter = counter
	return nil
}

// Status 返回流分区的当前状态（邻居 + 计数器）
func (m *Manager) Status(sp types.StreamPartID) (types.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, ok := m.parts[sp]
	if !ok {
		return types.Status{}, fmt.Errorf("%w: %s", ErrNotSetUp, sp)
	}
	return types.Status{
		StreamPart: sp,
		Neighbors:  sortedNodes(part.neighbors),
		Counter:    part.counter,
	}, nil
}

// MarkAndCheck 对消息做重复/缺口检测
//
// 检测器按 (发布者, 消息链) 懒创建。
func (m *Manager) MarkAndCheck(id types.MessageID, prev *types.MessageRef) (dedup.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.parts[id.StreamPart]
	if !ok {
		return dedup.Duplicate, fmt.Errorf("%w: %s", ErrNotSetUp, id.StreamPart)
	}

	key := detectorKey{publisherID: id.PublisherID, msgChainID: id.MsgChainID}
	detector, ok := part.detectors[key]
	if !ok {
		detector = dedup.NewDetector()
		part.detectors[key] = detector
	}
	return detector.MarkAndCheck(prev, id.Ref())
}

// StreamParts 返回所有已建立的流分区（有序）
func (m *Manager) StreamParts() []types.StreamPartID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.StreamPartID, 0, len(m.parts))
	for sp := range m.parts {
		out = append(out, sp)
	}
	sortStreamParts(out)
	return out
}

// AllNeighbors 返回所有流分区邻居的并集（有序）
func (m *Manager) AllNeighbors() []types.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[types.NodeID]struct{})
	for _, part := range m.parts {
		for node := range part.neighbors {
			all[node] = struct{}{}
		}
	}
	return sortedNodes(all)
}

func sortedNodes(set map[types.NodeID]struct{}) []types.NodeID {
	out := make([]types.NodeID, 0, len(set))
	for node := range set {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortStreamParts(sps []types.StreamPartID) {
	sort.Slice(sps, func(i, j int) bool { return sps[i].String() < sps[j].String() })
}
