package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-overlay/pkg/lib/log"
)

var logger = log.Logger("overlay")

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期常量
// ════════════════════════════════════════════════════════════════════════════

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// shutdownTimeout 关闭超时（Fx App Stop）
	shutdownTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// runner Fx 应用的启动与关闭状态
//
// 内部组件停止后不可重启，因此只有 Start 与 Close 两个转换。
type runner struct {
	name string
	app  *fx.App

	// abandon 未启动即关闭时释放构造阶段打开的资源
	abandon func() error

	mu      sync.Mutex
	started bool
	closed  bool
}

func (r *runner) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := r.app.Start(initCtx); err != nil {
		logger.Error("initialize failed", "component", r.name, "err", err)
		// 部分启动的组件需要停止
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		_ = r.app.Stop(stopCtx)
		r.closed = true
		return fmt.Errorf("initialize failed: %w", err)
	}
	r.started = true
	logger.Info("started", "component", r.name)
	return nil
}

func (r *runner) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if !r.started {
		if r.abandon != nil {
			return r.abandon()
		}
		return nil
	}
	r.started = false

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.app.Stop(ctx); err != nil {
		logger.Warn("stop fx app failed", "component", r.name, "err", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("closed", "component", r.name)
	return nil
}

func (r *runner) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.closed
}
