package config

import "fmt"

// DiagnosticsConfig 自省服务配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用自省 HTTP 服务（拓扑快照、RTT、Prometheus 指标）
	EnableIntrospect bool `json:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址
	// 默认 "127.0.0.1:6060"
	IntrospectAddr string `json:"introspect_addr"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableIntrospect: false,
		IntrospectAddr:   "127.0.0.1:6060",
	}
}

// Validate 验证诊断配置
func (c *DiagnosticsConfig) Validate() error {
	if c.EnableIntrospect && c.IntrospectAddr == "" {
		return fmt.Errorf("%w: diagnostics: introspect_addr is empty", ErrInvalidConfig)
	}
	return nil
}
