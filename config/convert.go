package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TrackerConfigFromJSON 从 JSON 创建 tracker 配置，未出现的字段保留默认值
func TrackerConfigFromJSON(data []byte) (*TrackerConfig, error) {
	cfg := NewTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracker config: %w", err)
	}
	return cfg, nil
}

// NodeConfigFromJSON 从 JSON 创建节点配置，未出现的字段保留默认值
func NodeConfigFromJSON(data []byte) (*NodeConfig, error) {
	cfg := NewNodeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node config: %w", err)
	}
	return cfg, nil
}

// LoadTrackerConfig 从文件加载并验证 tracker 配置
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tracker config: %w", err)
	}
	cfg, err := TrackerConfigFromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadNodeConfig 从文件加载并验证节点配置
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node config: %w", err)
	}
	cfg, err := NodeConfigFromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
