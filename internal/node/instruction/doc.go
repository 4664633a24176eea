// Package instruction 实现节点侧 tracker 指令的串行化与重试
//
// Throttler 保证每个流分区同一时刻最多一个应用过程在执行，
// 等待槽只保留最新指令；计数器回退的指令被丢弃。
// 正在执行的应用不会被抢占。
//
// RetryManager 为每个流分区定期重新应用最后一条指令，
// 作为状态上报丢失时的兜底；每第 N 次重试强制推送完整状态。
// 重试经 Throttler.Retry 进入同一个等待槽，与新指令串行。
package instruction
