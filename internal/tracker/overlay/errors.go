package overlay

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ErrInvariantViolation 拓扑不变量被破坏
//
// 这是实现缺陷而不是运行时状态：调用方必须放弃本批指令并大声报告，
// 不能静默吞掉。
var ErrInvariantViolation = errors.New("overlay: invariant violation")

// InvariantViolation 不变量破坏详情
type InvariantViolation struct {
	Node   types.NodeID
	Detail string
}

// Error 实现 error 接口
func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("overlay: invariant violation at node %s: %s", e.Node, e.Detail)
}

// Is 使 errors.Is(err, ErrInvariantViolation) 成立
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}
