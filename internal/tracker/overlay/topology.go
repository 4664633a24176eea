// Package overlay 实现 tracker 侧每个流分区的邻居图与度数约束算法
//
// # 算法
//
// FormInstructions 在每次 Update / Leave 之后针对触发节点运行：
//  1. 度数超过 D：随机打乱邻居并截断到 D
//  2. 度数低于 D：从有空位的节点中随机补齐
//  3. 仍缺 2 个及以上：边交换。选一个非邻居 n1，再从 n1 的邻居中选一个
//     同样非邻居的 n2，断开 (n1,n2)，建立 (node,n1)、(node,n2)。
//     一条边换两条边，空位总数的奇偶性不变，避免一次补一个的振荡。
//     交换次数受 maxSwapAttempts 约束。
//  4. 重新计算所有受影响节点的空位缓存
//  5. 检查不变量：不存在自环
//
// Topology 不是并发安全的，由 tracker 按流分区串行调用。
package overlay

import (
	"math/rand/v2"
	"sort"

	"github.com/dep2p/go-overlay/pkg/types"
)

// DefaultMaxNeighborsPerNode 默认目标度数
const DefaultMaxNeighborsPerNode = 4

// DefaultMaxSwapAttempts 单次 FormInstructions 最多尝试的边交换次数
const DefaultMaxSwapAttempts = 64

// ShuffleFunc 原地打乱节点切片
type ShuffleFunc func(nodes []types.NodeID)

// RandomShuffle 使用均匀随机打乱
func RandomShuffle(nodes []types.NodeID) {
	rand.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})
}

// Instructions 节点 -> 其完整的新邻居列表
type Instructions map[types.NodeID][]types.NodeID

// Option 配置选项
type Option func(*Topology)

// WithShuffle 设置打乱函数（测试中使用恒等函数得到确定结果）
func WithShuffle(shuffle ShuffleFunc) Option {
	return func(t *Topology) {
		t.shuffle = shuffle
	}
}

// WithMaxSwapAttempts 设置边交换尝试上限
func WithMaxSwapAttempts(n int) Option {
	return func(t *Topology) {
		if n > 0 {
			t.maxSwapAttempts = n
		}
	}
}

// nodeSet 节点集合
type nodeSet map[types.NodeID]struct{}

// Topology 单个流分区的邻居图
type Topology struct {
	maxNeighbors    int
	maxSwapAttempts int
	shuffle         ShuffleFunc

	// nodes 邻接表；边通过同时修改两端保持对称
	nodes map[types.NodeID]nodeSet

	// openSlots 度数 < D 的节点缓存，每次变更后显式重算
	openSlots nodeSet
}

// New 创建邻居图
func New(maxNeighbors int, opts ...Option) *Topology {
	if maxNeighbors <= 0 {
		maxNeighbors = DefaultMaxNeighborsPerNode
	}
	t := &Topology{
		maxNeighbors:    maxNeighbors,
		maxSwapAttempts: DefaultMaxSwapAttempts,
		shuffle:         RandomShuffle,
		nodes:           make(map[types.NodeID]nodeSet),
		openSlots:       make(nodeSet),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ============================================================================
//                              查询
// ============================================================================

// HasNode 节点是否在图中
func (t *Topology) HasNode(node types.NodeID) bool {
	_, ok := t.nodes[node]
	return ok
}

// IsEmpty 图是否为空
func (t *Topology) IsEmpty() bool {
	return len(t.nodes) == 0
}

// NumberOfNodes 节点数
func (t *Topology) NumberOfNodes() int {
	return len(t.nodes)
}

// MaxNeighbors 目标度数 D
func (t *Topology) MaxNeighbors() int {
	return t.maxNeighbors
}

// Neighbors 返回节点的邻居（有序）
func (t *Topology) Neighbors(node types.NodeID) []types.NodeID {
	set, ok := t.nodes[node]
	if !ok {
		return nil
	}
	return set.sorted()
}

// State 返回整张图的快照（邻居有序）
func (t *Topology) State() map[types.NodeID][]types.NodeID {
	out := make(map[types.NodeID][]types.NodeID, len(t.nodes))
	for node, set := range t.nodes {
		out[node] = set.sorted()
	}
	return out
}

// ============================================================================
//                              变更
// ============================================================================

// Update 用上报的邻居替换节点的邻居集合
//
// 只保留图中已知的节点并去掉自身；被删除的边在对端同步删除，
// 新增的边在对端同步添加。
func (t *Topology) Update(node types.NodeID, reported []types.NodeID) {
	next := make(nodeSet, len(reported))
	for _, n := range reported {
		if n == node {
			continue
		}
		if _, known := t.nodes[n]; known {
			next[n] = struct{}{}
		}
	}

	if current, ok := t.nodes[node]; ok {
		for n := range current {
			if _, keep := next[n]; !keep {
				delete(t.nodes[n], node)
				t.checkOpenSlots(n)
			}
		}
	}

	t.nodes[node] = next
	for n := range next {
		t.nodes[n][node] = struct{}{}
		t.checkOpenSlots(n)
	}
	t.checkOpenSlots(node)
}

// Leave 从图中移除节点，返回其原邻居
func (t *Topology) Leave(node types.NodeID) []types.NodeID {
	set, ok := t.nodes[node]
	if !ok {
		return nil
	}
	former := set.sorted()
	for _, n := range former {
		delete(t.nodes[n], node)
		t.checkOpenSlots(n)
	}
	delete(t.nodes, node)
	delete(t.openSlots, node)
	return former
}

// FormInstructions 针对 node 运行度数约束算法
//
// 返回邻居集合发生变化的节点的完整新邻居列表；forceGenerate 为 true 时
// 即使 node 自身未变化也包含 node（例如它刚被动失去一个邻居）。
// 返回 *InvariantViolation 时调用方必须丢弃本批结果。
func (t *Topology) FormInstructions(node types.NodeID, forceGenerate bool) (Instructions, error) {
	if _, ok := t.nodes[node]; !ok {
		return Instructions{}, nil
	}

	updated := make(nodeSet)

	// 1. 截断多余邻居
	if excess := len(t.nodes[node]) - t.maxNeighbors; excess > 0 {
		current := t.nodes[node].sorted()
		t.shuffle(current)
		for _, n := range current[t.maxNeighbors:] {
			t.disconnect(node, n)
			updated[n] = struct{}{}
		}
		updated[node] = struct{}{}
	}

	// 2. 从有空位的节点补齐
	if missing := t.missing(node); missing > 0 {
		candidates := make([]types.NodeID, 0, len(t.openSlots))
		for _, n := range t.openSlots.sorted() {
			if n == node || t.has(node, n) {
				continue
			}
			candidates = append(candidates, n)
		}
		t.shuffle(candidates)
		if len(candidates) > missing {
			candidates = candidates[:missing]
		}
		for _, n := range candidates {
			t.connect(node, n)
			updated[n] = struct{}{}
		}
		if len(candidates) > 0 {
			updated[node] = struct{}{}
		}
	}

	// 3. 边交换
	if t.missing(node) > 1 {
		for _, n := range t.rewire(node) {
			updated[n] = struct{}{}
		}
	}

	// 4. 重算空位
	t.checkOpenSlots(node)
	for n := range updated {
		t.checkOpenSlots(n)
	}

	// 5. 不变量检查
	if forceGenerate {
		updated[node] = struct{}{}
	}
	for n := range updated {
		if t.has(n, n) {
			return nil, &InvariantViolation{Node: n, Detail: "node is its own neighbor"}
		}
	}

	instructions := make(Instructions, len(updated))
	for n := range updated {
		instructions[n] = t.nodes[n].sorted()
	}
	return instructions, nil
}

// rewire 边交换，返回受影响的节点
func (t *Topology) rewire(node types.NodeID) []types.NodeID {
	var touched []types.NodeID

	targets := make([]types.NodeID, 0, len(t.nodes))
	for n := range t.nodes {
		if n == node || t.has(node, n) {
			continue
		}
		targets = append(targets, n)
	}
	sortNodes(targets)
	t.shuffle(targets)

	attempts := 0
	for _, n1 := range targets {
		if t.missing(node) <= 1 || attempts >= t.maxSwapAttempts {
			break
		}
		attempts++

		// n1 可能已在本轮成为邻居
		if t.has(node, n1) {
			continue
		}

		var pool []types.NodeID
		for _, n2 := range t.nodes[n1].sorted() {
			if n2 == node || t.has(node, n2) {
				continue
			}
			pool = append(pool, n2)
		}
		if len(pool) == 0 {
			continue
		}
		t.shuffle(pool)
		n2 := pool[0]

		t.disconnect(n1, n2)
		t.connect(node, n1)
		t.connect(node, n2)
		touched = append(touched, node, n1, n2)
	}
	return touched
}

// ============================================================================
//                              内部方法
// ============================================================================

func (t *Topology) has(a, b types.NodeID) bool {
	_, ok := t.nodes[a][b]
	return ok
}

func (t *Topology) connect(a, b types.NodeID) {
	t.nodes[a][b] = struct{}{}
	t.nodes[b][a] = struct{}{}
}

func (t *Topology) disconnect(a, b types.NodeID) {
	delete(t.nodes[a], b)
	delete(t.nodes[b], a)
}

func (t *Topology) missing(node types.NodeID) int {
	return t.maxNeighbors - len(t.nodes[node])
}

// checkOpenSlots 根据当前度数维护空位缓存
func (t *Topology) checkOpenSlots(node types.NodeID) {
	set, ok := t.nodes[node]
	if ok && len(set) < t.maxNeighbors {
		t.openSlots[node] = struct{}{}
	} else {
		delete(t.openSlots, node)
	}
}

func (s nodeSet) sorted() []types.NodeID {
	out := make([]types.NodeID, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

func sortNodes(nodes []types.NodeID) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
}
