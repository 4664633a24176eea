// Package debounce 提供按 key 管理的防抖定时器
//
// 每个 key 有两个定时器：
//   - 静默定时器：每次 Touch 重置，wait 内无新 Touch 则触发
//   - 上限定时器：第一次 Touch 时启动，maxWait 到期强制触发
//
// 任一定时器触发后 key 被清除，另一个定时器被取消，回调在锁外执行。
// 时钟可注入，测试中使用 clock.NewMock()。
package debounce

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Keyed 按 key 的防抖定时器
type Keyed[K comparable] struct {
	clock   clock.Clock
	wait    time.Duration
	maxWait time.Duration
	fire    func(K)

	mu      sync.Mutex
	entries map[K]*entry
	stopped bool
}

type entry struct {
	quiet    *clock.Timer
	deadline *clock.Timer
	seq      uint64
}

// New 创建防抖定时器
//
// maxWait 为 0 表示不设上限。fire 在定时器 goroutine 中调用。
func New[K comparable](clk clock.Clock, wait, maxWait time.Duration, fire func(K)) *Keyed[K] {
	if clk == nil {
		clk = clock.New()
	}
	return &Keyed[K]{
		clock:   clk,
		wait:    wait,
		maxWait: maxWait,
		fire:    fire,
		entries: make(map[K]*entry),
	}
}

// Touch 启动或重置 key 的静默定时器
//
// 返回 true 表示这是该 key 的第一次 Touch（新建了上限定时器）。
func (d *Keyed[K]) Touch(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	e, ok := d.entries[key]
	if !ok {
		e = &entry{}
		d.entries[key] = e
		if d.maxWait > 0 {
			e.deadline = d.clock.AfterFunc(d.maxWait, func() {
				d.expire(key, e, 0, false)
			})
		}
	} else if e.quiet != nil {
		e.quiet.Stop()
	}

	e.seq++
	seq := e.seq
	e.quiet = d.clock.AfterFunc(d.wait, func() {
		d.expire(key, e, seq, true)
	})
	return !ok
}

// Cancel 取消 key 且不触发，返回 key 是否存在
func (d *Keyed[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if ok {
		d.removeLocked(key, e)
	}
	return ok
}

// Pending key 是否已武装
func (d *Keyed[K]) Pending(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

// Len 已武装的 key 数
func (d *Keyed[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Stop 取消所有 key，之后的 Touch 无效
func (d *Keyed[K]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, e := range d.entries {
		d.removeLocked(key, e)
	}
}

// expire 定时器回调；过期的回调（entry 已被替换或静默定时器已重置）被忽略
func (d *Keyed[K]) expire(key K, e *entry, seq uint64, quiet bool) {
	d.mu.Lock()
	current, ok := d.entries[key]
	if !ok || current != e || (quiet && e.seq != seq) {
		d.mu.Unlock()
		return
	}
	d.removeLocked(key, e)
	d.mu.Unlock()

	d.fire(key)
}

func (d *Keyed[K]) removeLocked(key K, e *entry) {
	if e.quiet != nil {
		e.quiet.Stop()
	}
	if e.deadline != nil {
		e.deadline.Stop()
	}
	delete(d.entries, key)
}
