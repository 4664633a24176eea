package tracker

import "errors"

var (
	// ErrInvalidCounter 状态计数器为除退订以外的负值
	ErrInvalidCounter = errors.New("tracker: invalid status counter")
)
