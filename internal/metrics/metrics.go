package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "overlay"

// NewRegistry 创建私有 registry，附带进程与 Go runtime 指标
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ============================================================================
//                              Tracker
// ============================================================================

// Tracker tracker 侧指标
type Tracker struct {
	StatusProcessed      prometheus.Counter
	StatusStale          prometheus.Counter
	StatusInvalid        prometheus.Counter
	InstructionsBuffered prometheus.Counter
	InstructionsSent     prometheus.Counter
	InstructionsFailed   prometheus.Counter
	InstructionsLimited  prometheus.Counter
	Flushes              prometheus.Counter
	InvariantViolations  prometheus.Counter
	StreamParts          prometheus.Gauge
	Nodes                prometheus.Gauge
}

// NewTracker 创建 tracker 指标；reg 为 nil 时不注册
func NewTracker(reg prometheus.Registerer) *Tracker {
	f := promauto.With(reg)
	return &Tracker{
		StatusProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "status_processed_total",
			Help: "Statuses accepted and applied to a topology.",
		}),
		StatusStale: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "status_stale_total",
			Help: "Statuses ignored because their counter was older than the last instruction.",
		}),
		StatusInvalid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "status_invalid_total",
			Help: "Statuses rejected as malformed.",
		}),
		InstructionsBuffered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "instructions_buffered_total",
			Help: "Instructions added to a debounce buffer.",
		}),
		InstructionsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "instructions_sent_total",
			Help: "Instructions delivered to the transport.",
		}),
		InstructionsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "instructions_failed_total",
			Help: "Instructions the transport failed to deliver.",
		}),
		InstructionsLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "instructions_rate_limited_total",
			Help: "Instruction sends that waited on the rate limiter.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "instruction_flushes_total",
			Help: "Debounce buffer flushes.",
		}),
		InvariantViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "invariant_violations_total",
			Help: "Topology invariant violations. Any non-zero value is a bug.",
		}),
		StreamParts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "stream_parts",
			Help: "Stream parts with a non-empty topology.",
		}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracker", Name: "nodes",
			Help: "Distinct nodes present in at least one topology.",
		}),
	}
}

// ============================================================================
//                              Node
// ============================================================================

// Node 节点侧指标
type Node struct {
	DataReceived        prometheus.Counter
	Duplicates          prometheus.Counter
	Gaps                prometheus.Counter
	InvalidNumbering    prometheus.Counter
	Propagated          prometheus.Counter
	DeliveryFailures    prometheus.Counter
	ForcedDisconnects   prometheus.Counter
	TasksEvicted        prometheus.Counter
	InstructionsApplied prometheus.Counter
	InstructionsDropped prometheus.Counter
	InstructionRetries  prometheus.Counter
	Neighbors           prometheus.Gauge
	Latency             prometheus.Gauge
}

// NewNode 创建节点指标；reg 为 nil 时不注册
func NewNode(reg prometheus.Registerer) *Node {
	f := promauto.With(reg)
	return &Node{
		DataReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "data_received_total",
			Help: "Data messages received from neighbors or published locally.",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "duplicates_total",
			Help: "Data messages dropped as duplicates.",
		}),
		Gaps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "gaps_total",
			Help: "Data messages accepted with a gap before them.",
		}),
		InvalidNumbering: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "invalid_numbering_total",
			Help: "Data messages dropped because prev reference was not older than the message.",
		}),
		Propagated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "propagated_total",
			Help: "Successful sends of a data message to a neighbor.",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "delivery_failures_total",
			Help: "Failed sends of a data message to a neighbor.",
		}),
		ForcedDisconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "forced_disconnects_total",
			Help: "Neighbors disconnected after too many consecutive delivery failures.",
		}),
		TasksEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "propagation_tasks_evicted_total",
			Help: "Propagation tasks dropped by capacity or age before reaching their target.",
		}),
		InstructionsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "instructions_applied_total",
			Help: "Tracker instructions applied.",
		}),
		InstructionsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "instructions_dropped_total",
			Help: "Tracker instructions dropped as superseded or out of date.",
		}),
		InstructionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "node", Name: "instruction_retries_total",
			Help: "Automatic re-applications of the last instruction.",
		}),
		Neighbors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "node", Name: "neighbors",
			Help: "Distinct neighbors across all stream parts.",
		}),
		Latency: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "node", Name: "latency_average_ms",
			Help: "Exponentially weighted average latency of unseen messages in milliseconds.",
		}),
	}
}
