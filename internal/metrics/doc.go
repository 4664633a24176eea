// Package metrics 定义 tracker 与节点的 Prometheus 指标
//
// 所有指标注册在私有 registry 上（不污染全局 DefaultRegisterer），
// 由 introspect 通过 promhttp 暴露。registry 为 nil 时指标照常计数但不注册，
// 单元测试中直接使用 NewTracker(nil) / NewNode(nil)。
package metrics
