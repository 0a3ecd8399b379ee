package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String 返回状态字符串
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断器打开，请求被拒绝
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker 保护外部生成服务的熔断器
type CircuitBreaker struct {
	name string

	failureThreshold int
	successThreshold int // 半开状态下恢复所需的连续成功次数
	cooldown         time.Duration

	state        int32
	failureCount int32
	successCount int32

	mu              sync.RWMutex
	lastFailureTime time.Time
	now             func() time.Time
}

// BreakerStats 熔断器状态快照
type BreakerStats struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	FailureCount     int32     `json:"failure_count"`
	FailureThreshold int       `json:"failure_threshold"`
	Cooldown         string    `json:"cooldown"`
	LastFailureTime  time.Time `json:"last_failure_time,omitempty"`
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            int32(StateClosed),
		now:              time.Now,
	}
}

// Call 在熔断保护下执行fn；打开状态直接返回 ErrCircuitOpen
// 调用方取消(context.Canceled)不计入成功或失败
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	switch cb.State() {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		cb.mu.RLock()
		elapsed := cb.now().Sub(cb.lastFailureTime)
		cb.mu.RUnlock()
		if elapsed < cb.cooldown {
			return false
		}
		if atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
			atomic.StoreInt32(&cb.successCount, 0)
		}
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.State() {
	case StateHalfOpen:
		if int(atomic.AddInt32(&cb.successCount, 1)) >= cb.successThreshold {
			atomic.StoreInt32(&cb.state, int32(StateClosed))
			atomic.StoreInt32(&cb.failureCount, 0)
		}
	case StateClosed:
		atomic.StoreInt32(&cb.failureCount, 0)
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	cb.lastFailureTime = cb.now()
	cb.mu.Unlock()

	switch cb.State() {
	case StateHalfOpen:
		atomic.StoreInt32(&cb.state, int32(StateOpen))
		atomic.StoreInt32(&cb.successCount, 0)
	case StateClosed:
		if int(atomic.AddInt32(&cb.failureCount, 1)) >= cb.failureThreshold {
			atomic.StoreInt32(&cb.state, int32(StateOpen))
		}
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// Name 熔断器名称
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats 状态快照
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return BreakerStats{
		Name:             cb.name,
		State:            cb.State().String(),
		FailureCount:     atomic.LoadInt32(&cb.failureCount),
		FailureThreshold: cb.failureThreshold,
		Cooldown:         cb.cooldown.String(),
		LastFailureTime:  cb.lastFailureTime,
	}
}
