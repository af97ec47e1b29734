// internal/messaging/executor.go
package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vda5050-bridge/internal/utils"
)

// ErrExecutorStopped is returned by Call after Stop.
var ErrExecutorStopped = errors.New("executor stopped")

// Executor runs tasks one at a time in submission order. Protocol state is only
// touched from its goroutine, so it needs no locking.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
	log     *logrus.Entry
}

// NewExecutor starts an executor. name shows up in logs.
func NewExecutor(name string) *Executor {
	e := &Executor{
		done: make(chan struct{}),
		log:  utils.Logger.WithFields(logrus.Fields{"component": "executor", "executor": name}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// Submit queues task. The queue is unbounded so transport callbacks never
// block. It reports false once the executor is stopped.
func (e *Executor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return true
}

// Schedule submits task after delay. The returned function cancels it if it
// has not run yet.
func (e *Executor) Schedule(delay time.Duration, task func()) (cancel func()) {
	var cancelled atomic.Bool
	timer := time.AfterFunc(delay, func() {
		e.Submit(func() {
			if !cancelled.Load() {
				task()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Call runs task on the executor and waits for its result. It must not be
// used from a task already running on the executor.
func (e *Executor) Call(task func() error) error {
	result := make(chan error, 1)
	if !e.Submit(func() { result <- task() }) {
		return ErrExecutorStopped
	}
	select {
	case err := <-result:
		return err
	case <-e.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrExecutorStopped
		}
	}
}

// Flush waits until every task submitted before it has run.
func (e *Executor) Flush() {
	_ = e.Call(func() error { return nil })
}

// Stop rejects new tasks, runs the queued ones and waits for the loop to end.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.stopped {
		e.stopped = true
		e.cond.Signal()
	}
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(task)
	}
}

func (e *Executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("task panicked: %v", r)
		}
	}()
	task()
}
