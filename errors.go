package overlay

import "errors"

// 公共错误定义
var (
	// ErrNotStarted 未启动
	ErrNotStarted = errors.New("overlay: not started")

	// ErrAlreadyStarted 已启动
	ErrAlreadyStarted = errors.New("overlay: already started")

	// ErrClosed 已关闭
	ErrClosed = errors.New("overlay: closed")

	// ErrNilOption 选项参数为空
	ErrNilOption = errors.New("overlay: nil option argument")
)
