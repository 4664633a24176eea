package config

import "errors"

// ErrInvalidConfig 配置无效；具体原因由包装的消息给出
var ErrInvalidConfig = errors.New("config: invalid")
