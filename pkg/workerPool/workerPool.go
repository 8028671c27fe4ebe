package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrGlobalBufferFull = errors.New("ouroboros: worker pool queue is full")
	ErrRoomBufferFull   = errors.New("ouroboros: room result buffer is full")
	ErrPoolClosed       = errors.New("ouroboros: worker pool closed")
)

// WorkerPool runs tasks on a fixed number of goroutines. Tasks are grouped
// in rooms; every room collects the results of its own tasks.
type WorkerPool struct {
	config    Config
	taskQueue chan task
	closed    atomic.Bool
	closeOnce sync.Once
}

type Config struct {
	// WorkerCount defaults to three workers per CPU.
	WorkerCount int
	// GlobalBuffer is the capacity of the shared task queue.
	GlobalBuffer int
}

type Room struct {
	result               []interface{}
	resultMutex          sync.Mutex
	asyncCollectorWait   sync.WaitGroup
	asyncCollectorActive atomic.Bool
	resultChan           chan interface{}
	closeOnce            sync.Once
	wg                   sync.WaitGroup
	wp                   *WorkerPool
}

type task struct {
	run  func() interface{}
	room *Room
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan task, config.GlobalBuffer),
	}
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	for t := range wp.taskQueue {
		t.room.resultChan <- t.run()
		t.room.wg.Done()
	}
}

// Close stops the workers once the queued tasks are done. Submitting to a
// closed pool fails with ErrPoolClosed; Close must not run concurrently with
// a submission.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		wp.closed.Store(true)
		close(wp.taskQueue)
	})
}

func (wp *WorkerPool) Workers() int {
	return wp.config.WorkerCount
}

// CreateRoom returns a room whose result buffer holds size results. Tasks
// block once the buffer is full until a collector drains it.
func (wp *WorkerPool) CreateRoom(size int) *Room {
	return &Room{
		resultChan: make(chan interface{}, max(size, 1)),
		wp:         wp,
	}
}

// NewTaskWaitForFreeSlot queues job, waiting for space in the shared queue
// until ctx is done.
func (ro *Room) NewTaskWaitForFreeSlot(ctx context.Context, job func() interface{}) error {
	if ro.wp.closed.Load() {
		return ErrPoolClosed
	}
	ro.wg.Add(1)
	select {
	case ro.wp.taskQueue <- task{run: job, room: ro}:
		return nil
	case <-ctx.Done():
		ro.wg.Done()
		return ctx.Err()
	}
}

// NewTask queues job without waiting.
func (ro *Room) NewTask(job func() interface{}) error {
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return ErrGlobalBufferFull
	}
	if len(ro.resultChan) == cap(ro.resultChan) {
		return ErrRoomBufferFull
	}
	return ro.NewTaskWaitForFreeSlot(context.Background(), job)
}

// Collect waits for every queued task and returns the results in completion
// order. Use it when the room buffer can hold all results, otherwise start
// an AsyncCollector before queueing.
func (ro *Room) Collect() []interface{} {
	go ro.waitAndClose()
	results := make([]interface{}, 0, len(ro.resultChan))
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}

// AsyncCollector drains results in the background while tasks are queued.
func (ro *Room) AsyncCollector() {
	if !ro.asyncCollectorActive.CompareAndSwap(false, true) {
		return
	}
	ro.asyncCollectorWait.Add(1)

	go func() {
		defer ro.asyncCollectorActive.Store(false)
		defer ro.asyncCollectorWait.Done()

		ro.resultMutex.Lock()
		defer ro.resultMutex.Unlock()
		for result := range ro.resultChan {
			ro.result = append(ro.result, result)
		}
	}()
}

// GetAsyncResults waits for the tasks and the async collector and returns
// everything collected.
func (ro *Room) GetAsyncResults() []interface{} {
	go ro.waitAndClose()
	ro.asyncCollectorWait.Wait()

	ro.resultMutex.Lock()
	defer ro.resultMutex.Unlock()
	return ro.result
}

func (ro *Room) waitAndClose() {
	ro.wg.Wait()
	ro.closeOnce.Do(func() { close(ro.resultChan) })
}
