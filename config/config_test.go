package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewTrackerConfig 默认 tracker 配置有效
func TestNewTrackerConfig(t *testing.T) {
	cfg := NewTrackerConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Topology.MaxNeighborsPerNode)
	assert.Equal(t, 100*time.Millisecond, cfg.Instructions.DebounceWait.Duration())
	assert.Equal(t, 2*time.Second, cfg.Instructions.MaxWait.Duration())
	assert.Zero(t, cfg.Instructions.RateLimit)
}

// TestNewNodeConfig 默认节点配置有效
func TestNewNodeConfig(t *testing.T) {
	cfg := NewNodeConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Propagation.TTL.Duration())
	assert.Equal(t, 10000, cfg.Propagation.MaxMessages)
	assert.Equal(t, 15*time.Second, cfg.Connection.ConnectTimeout.Duration())
	assert.Equal(t, 100, cfg.Connection.MaxConsecutiveDeliveryFailures)
	assert.Equal(t, 3*time.Minute, cfg.Instructions.RetryInterval.Duration())
	assert.Equal(t, 10, cfg.Instructions.FullStatusEvery)
	assert.Equal(t, 5*time.Second, cfg.Connection.TrackerReconnectInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Transport.PingInterval.Duration())
}

func TestNodeConfig_MinPropagationTargets(t *testing.T) {
	cfg := NewNodeConfig()
	assert.Equal(t, 2, cfg.MinPropagationTargets())

	cfg.Topology.MaxNeighborsPerNode = 7
	assert.Equal(t, 3, cfg.MinPropagationTargets())

	cfg.Propagation.MinPropagationTargets = 0
	assert.Equal(t, 0, cfg.MinPropagationTargets())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrackerConfig)
	}{
		{"zero degree", func(c *TrackerConfig) { c.Topology.MaxNeighborsPerNode = 0 }},
		{"zero swaps", func(c *TrackerConfig) { c.Topology.MaxSwapAttempts = 0 }},
		{"zero debounce", func(c *TrackerConfig) { c.Instructions.DebounceWait = 0 }},
		{"max below debounce", func(c *TrackerConfig) { c.Instructions.MaxWait = Duration(time.Millisecond) }},
		{"negative rate", func(c *TrackerConfig) { c.Instructions.RateLimit = -1 }},
		{"rate without burst", func(c *TrackerConfig) {
			c.Instructions.RateLimit = 10
			c.Instructions.RateBurst = 0
		}},
		{"empty listen", func(c *TrackerConfig) { c.ListenAddr = "" }},
		{"zero write timeout", func(c *TrackerConfig) { c.Transport.WriteTimeout = 0 }},
		{"zero message size", func(c *TrackerConfig) { c.Transport.MaxMessageSize = 0 }},
		{"introspect without addr", func(c *TrackerConfig) {
			c.Diagnostics.EnableIntrospect = true
			c.Diagnostics.IntrospectAddr = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTrackerConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	var nilCfg *NodeConfig
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)

	node := NewNodeConfig()
	node.Propagation.MaxMessages = 0
	assert.ErrorIs(t, node.Validate(), ErrInvalidConfig)

	node = NewNodeConfig()
	node.Connection.TrackerReconnectInterval = 0
	assert.ErrorIs(t, node.Validate(), ErrInvalidConfig)

	node = NewNodeConfig()
	node.Instructions.FullStatusEvery = 0
	assert.ErrorIs(t, node.Validate(), ErrInvalidConfig)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"150ms"`), &d))
	assert.Equal(t, 150*time.Millisecond, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.ErrorIs(t, json.Unmarshal([]byte(`"soon"`), &d), ErrInvalidConfig)
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(3 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, `"3m0s"`, string(out))
}

func TestNodeConfigFromJSON_KeepsDefaults(t *testing.T) {
	cfg, err := NodeConfigFromJSON([]byte(`{
		"id": "10.0.0.1:30400",
		"propagation": {"ttl": "5s"},
		"extra": {"region": "eu"},
		"location": {"country": "FI", "city": "Helsinki"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:30400", cfg.ID)
	assert.Equal(t, 5*time.Second, cfg.Propagation.TTL.Duration())
	assert.Equal(t, 10000, cfg.Propagation.MaxMessages)
	assert.Equal(t, "eu", cfg.Extra["region"])
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "Helsinki", cfg.Location.City)
	assert.Equal(t, ":30400", cfg.ListenAddr)

	_, err = NodeConfigFromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadTrackerConfig(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "tracker.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"topology": {"max_neighbors_per_node": 6}}`), 0o600))
	cfg, err := LoadTrackerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Topology.MaxNeighborsPerNode)
	assert.Equal(t, 64, cfg.Topology.MaxSwapAttempts)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"topology": {"max_neighbors_per_node": 0}}`), 0o600))
	_, err = LoadTrackerConfig(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadTrackerConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadNodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tracker_url": "ws://tracker:30300/tracker"}`), 0o600))

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://tracker:30300/tracker", cfg.TrackerURL)
}
