// Package dedup 实现按 (流分区, 发布者, 消息链) 的重复/缺口检测
//
// 每个 Detector 只保存最近一次接受的编号 (timestamp, sequenceNumber)。
// 只有真正的重复消息会被拦截；检测到缺口时消息照常放行，
// 由调用方记录告警。
package dedup

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// ErrInvalidNumbering 消息编号不合法（前序编号不小于当前编号）
var ErrInvalidNumbering = errors.New("dedup: previous number must be less than current number")

// Result 检测结果
type Result int

const (
	// Accepted 首次出现，状态已推进
	Accepted Result = iota

	// Gap 首次出现，但前序编号与上次接受的编号不一致，状态已推进
	Gap

	// Duplicate 已经见过，状态不变
	Duplicate
)

// String 返回结果字符串
func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Gap:
		return "gap"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// IsUnseen 消息是否需要继续交付与传播
func (r Result) IsUnseen() bool {
	return r != Duplicate
}

// Detector 单条消息链的检测状态机
//
// 非并发安全，由所属的成员表加锁保护。
type Detector struct {
	last    types.MessageRef
	hasLast bool
}

// NewDetector 创建空的检测器
func NewDetector() *Detector {
	return &Detector{}
}

// MarkAndCheck 检查并标记消息编号
//
// prev 为 nil 表示发布者未提供前序编号，此时不做缺口判断。
// 不大于已接受编号的消息一律视为重复，优先于编号合法性检查。
func (d *Detector) MarkAndCheck(prev *types.MessageRef, cur types.MessageRef) (Result, error) {
	if d.hasLast && cur.Compare(d.last) <= 0 {
		return Duplicate, nil
	}

	if prev != nil && prev.Compare(cur) >= 0 {
		return Duplicate, fmt.Errorf("%w: prev=%s cur=%s", ErrInvalidNumbering, prev, cur)
	}

	if !d.hasLast {
		d.last = cur
		d.hasLast = true
		return Accepted, nil
	}

	result := Accepted
	if prev != nil && *prev != d.last {
		result = Gap
	}
	d.last = cur
	return result, nil
}

// Last 返回最近一次接受的编号
func (d *Detector) Last() (types.MessageRef, bool) {
	return d.last, d.hasLast
}

// String 返回状态描述
func (d *Detector) String() string {
	if !d.hasLast {
		return ""
	}
	return d.last.String()
}
