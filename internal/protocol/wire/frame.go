package wire

import (
	"fmt"

	"github.com/dep2p/go-overlay/pkg/types"
)

// FrameType 帧类型
type FrameType uint8

const (
	// FrameStatus node → tracker 状态报告
	FrameStatus FrameType = 1
	// FrameInstruction tracker → node 拓扑指令
	FrameInstruction FrameType = 2
	// FrameData node → node 流消息
	FrameData FrameType = 3
	// 4 保留：投递确认由传输层发送结果表达

	// FrameError 对端报告的错误
	FrameError FrameType = 5
)

// String 返回帧类型名
func (t FrameType) String() string {
	switch t {
	case FrameStatus:
		return "status"
	case FrameInstruction:
		return "instruction"
	case FrameData:
		return "data"
	case FrameError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ErrorCode 错误码
type ErrorCode uint32

const (
	// ErrorCodeUnknown 未分类错误
	ErrorCodeUnknown ErrorCode = 0
	// ErrorCodeInvalidStatus 状态报告无效
	ErrorCodeInvalidStatus ErrorCode = 1
	// ErrorCodeMalformedFrame 帧无法解码
	ErrorCodeMalformedFrame ErrorCode = 2
)

// Error 错误帧
type Error struct {
	Code    ErrorCode
	Message string
}

// Frame 一个线上帧；Type 决定哪个载荷字段有效
type Frame struct {
	Type        FrameType
	Status      *types.Status
	Instruction *types.Instruction
	Data        *types.StreamMessage
	Error       *Error
}

// StatusFrame 创建状态帧
func StatusFrame(s *types.Status) Frame {
	return Frame{Type: FrameStatus, Status: s}
}

// InstructionFrame 创建指令帧
func InstructionFrame(inst *types.Instruction) Frame {
	return Frame{Type: FrameInstruction, Instruction: inst}
}

// DataFrame 创建数据帧
func DataFrame(msg *types.StreamMessage) Frame {
	return Frame{Type: FrameData, Data: msg}
}

// ErrorFrame 创建错误帧
func ErrorFrame(code ErrorCode, msg string) Frame {
	return Frame{Type: FrameError, Error: &Error{Code: code, Message: msg}}
}
