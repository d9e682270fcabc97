package conn

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// Scheduler 延迟执行器，测试中可替换为假时钟
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ReconnectManager 固定间隔的单次重连调度器。同一时刻最多只有一个待执行的重连。
type ReconnectManager struct {
	interval  time.Duration
	scheduler Scheduler

	mutex    sync.Mutex
	pending  Timer
	stopped  bool
	attempts atomic.Int64
}

// NewReconnectManager 创建重连管理器
func NewReconnectManager(interval time.Duration, scheduler Scheduler) *ReconnectManager {
	if scheduler == nil {
		scheduler = timeScheduler{}
	}
	return &ReconnectManager{
		interval:  interval,
		scheduler: scheduler,
	}
}

// ScheduleReconnect 在固定间隔后执行 fn。已有待执行重连或已停止时返回 false。
func (rm *ReconnectManager) ScheduleReconnect(fn func()) bool {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if rm.stopped || rm.pending != nil {
		return false
	}

	var timer Timer
	timer = rm.scheduler.AfterFunc(rm.interval, func() {
		rm.mutex.Lock()
		if rm.pending != timer || rm.stopped {
			rm.mutex.Unlock()
			return
		}
		rm.pending = nil
		rm.mutex.Unlock()

		fn()
	})
	rm.pending = timer
	rm.attempts.Inc()
	return true
}

// Stop 取消待执行的重连，并拒绝之后的调度
func (rm *ReconnectManager) Stop() bool {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.stopped = true
	if rm.pending == nil {
		return false
	}
	rm.pending.Stop()
	rm.pending = nil
	return true
}

// Pending 是否有待执行的重连
func (rm *ReconnectManager) Pending() bool {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	return rm.pending != nil
}

// Attempts 累计调度的重连次数
func (rm *ReconnectManager) Attempts() int64 {
	return rm.attempts.Load()
}

// Interval 重连间隔
func (rm *ReconnectManager) Interval() time.Duration {
	return rm.interval
}
