package wire

import "errors"

// 错误定义
var (
	// ErrMalformedFrame 帧格式错误
	ErrMalformedFrame = errors.New("wire: malformed frame")

	// ErrUnknownFrameType 未知帧类型
	ErrUnknownFrameType = errors.New("wire: unknown frame type")

	// ErrEmptyPayload 帧缺少载荷
	ErrEmptyPayload = errors.New("wire: empty payload")
)
