package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-overlay/pkg/lib/log"
	"github.com/dep2p/go-overlay/pkg/types"
)

var logger = log.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// ============================================================================
//                              配置
// ============================================================================

// TrackerView tracker 的只读快照
type TrackerView interface {
	Topologies() map[types.StreamPartID]map[types.NodeID][]types.NodeID
	Topology(sp types.StreamPartID) (map[types.NodeID][]types.NodeID, bool)
	OverlayConnectionRtts() map[types.NodeID]map[types.NodeID]int64
	NodeLocations() map[types.NodeID]types.Location
	ExtraMetadata() map[types.NodeID]map[string]string
	Nodes() []types.NodeID
}

// NodeView 节点的只读快照
type NodeView interface {
	ID() types.NodeID
	StreamParts() []types.StreamPartID
	Neighbors(sp types.StreamPartID) []types.NodeID
	AverageLatency() (float64, bool)
	PropagationTasks() int
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Tracker 可选，tracker 进程设置
	Tracker TrackerView

	// Node 可选，节点进程设置
	Node NodeView

	// Gatherer 可选，设置后提供 /metrics
	Gatherer prometheus.Gatherer
}

// ============================================================================
//                              Server
// ============================================================================

// Server 本地自省 HTTP 服务
type Server struct {
	config Config

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

// New 创建自省服务
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		config: cfg,
	}
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("introspect server exited", "err", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	logger.Info("introspect server started", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("failed to stop introspect server", "err", err)
		return err
	}

	s.running = false
	logger.Info("introspect server stopped")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Handler 返回路由，只注册已配置视图对应的端点
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	switch {
	case s.config.Tracker != nil:
		mux.HandleFunc("GET /topology", s.handleTrackerTopologies)
		mux.HandleFunc("GET /topology/{streamPart}", s.handleTrackerTopology)
		mux.HandleFunc("GET /rtts", s.handleRtts)
		mux.HandleFunc("GET /locations", s.handleLocations)
		mux.HandleFunc("GET /extra", s.handleExtra)
	case s.config.Node != nil:
		mux.HandleFunc("GET /topology", s.handleNodeTopologies)
		mux.HandleFunc("GET /topology/{streamPart}", s.handleNodeTopology)
		mux.HandleFunc("GET /node", s.handleNode)
	}

	if s.config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ============================================================================
//                              响应结构
// ============================================================================

// NodeInfo 节点概况
type NodeInfo struct {
	ID               string              `json:"id"`
	StreamParts      map[string][]string `json:"stream_parts"`
	AverageLatencyMs *float64            `json:"average_latency_ms,omitempty"`
	PropagationTasks int                 `json:"propagation_tasks"`
	Runtime          *RuntimeInfo        `json:"runtime,omitempty"`
}

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc"`
	MemSys       uint64 `json:"mem_sys"`
	NumGC        uint32 `json:"num_gc"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string    `json:"status"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ============================================================================
//                              tracker 端点
// ============================================================================

func (s *Server) handleTrackerTopologies(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]map[string][]string)
	for sp, topo := range s.config.Tracker.Topologies() {
		out[sp.String()] = encodeTopology(topo)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleTrackerTopology(w http.ResponseWriter, r *http.Request) {
	sp, ok := parseStreamPart(w, r)
	if !ok {
		return
	}
	topo, ok := s.config.Tracker.Topology(sp)
	if !ok {
		http.Error(w, "unknown stream part", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]map[string][]string{sp.String(): encodeTopology(topo)})
}

func (s *Server) handleRtts(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]map[string]int64)
	for node, rtts := range s.config.Tracker.OverlayConnectionRtts() {
		inner := make(map[string]int64, len(rtts))
		for nb, rtt := range rtts {
			inner[string(nb)] = rtt
		}
		out[string(node)] = inner
	}
	s.writeJSON(w, out)
}

func (s *Server) handleLocations(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]types.Location)
	for node, loc := range s.config.Tracker.NodeLocations() {
		out[string(node)] = loc
	}
	s.writeJSON(w, out)
}

func (s *Server) handleExtra(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]map[string]string)
	for node, extra := range s.config.Tracker.ExtraMetadata() {
		out[string(node)] = extra
	}
	s.writeJSON(w, out)
}

// ============================================================================
//                              节点端点
// ============================================================================

func (s *Server) handleNodeTopologies(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.nodeStreamParts())
}

func (s *Server) handleNodeTopology(w http.ResponseWriter, r *http.Request) {
	sp, ok := parseStreamPart(w, r)
	if !ok {
		return
	}
	neighbors, ok := s.nodeStreamParts()[sp.String()]
	if !ok {
		http.Error(w, "unknown stream part", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string][]string{sp.String(): neighbors})
}

func (s *Server) handleNode(w http.ResponseWriter, _ *http.Request) {
	n := s.config.Node
	info := NodeInfo{
		ID:               string(n.ID()),
		StreamParts:      s.nodeStreamParts(),
		PropagationTasks: n.PropagationTasks(),
		Runtime:          collectRuntimeInfo(),
	}
	if avg, ok := n.AverageLatency(); ok {
		info.AverageLatencyMs = &avg
	}
	s.writeJSON(w, info)
}

func (s *Server) nodeStreamParts() map[string][]string {
	n := s.config.Node
	out := make(map[string][]string)
	for _, sp := range n.StreamParts() {
		out[sp.String()] = types.NodeIDsToStrings(n.Neighbors(sp))
	}
	return out
}

// ============================================================================
//                              通用端点
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	started := s.startTime
	s.mu.Unlock()

	health := HealthResponse{
		Status:    "ok",
		Role:      "unknown",
		Timestamp: time.Now(),
	}
	if !started.IsZero() {
		health.Uptime = time.Since(started).String()
	}
	switch {
	case s.config.Tracker != nil:
		health.Role = "tracker"
	case s.config.Node != nil:
		health.Role = "node"
	default:
		health.Status = "degraded"
	}
	s.writeJSON(w, health)
}

func collectRuntimeInfo() *RuntimeInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &RuntimeInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

// ============================================================================
//                              辅助方法
// ============================================================================

func parseStreamPart(w http.ResponseWriter, r *http.Request) (types.StreamPartID, bool) {
	sp, err := types.ParseStreamPartID(r.PathValue("streamPart"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return types.StreamPartID{}, false
	}
	return sp, true
}

func encodeTopology(topo map[types.NodeID][]types.NodeID) map[string][]string {
	out := make(map[string][]string, len(topo))
	for node, neighbors := range topo {
		out[string(node)] = types.NodeIDsToStrings(neighbors)
	}
	return out
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("failed to encode response", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
