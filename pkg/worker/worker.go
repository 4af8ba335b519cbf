package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/bigchat/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler = func(workerIndex int, job any)

// WorkerManager is a fixed pool of goroutines draining a buffered job
// channel. Start blocks until Stop is called or ctx is cancelled, and every
// job already taken by a worker runs to completion.
type WorkerManager struct {
	jobChannel     chan any
	numberOfWorker int
	do             WorkerHandler
	stop           chan struct{}
	stopOnce       sync.Once
	waiter         sync.WaitGroup
}

func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		jobChannel:     make(chan any, bufferSize),
		numberOfWorker: numberOfWorkers,
		stop:           make(chan struct{}),
	}
}

func (w *WorkerManager) Pending() int {
	return len(w.jobChannel)
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue blocks until the job is buffered or the manager stops.
func (w *WorkerManager) Enqueue(ctx context.Context, job any) error {
	select {
	case <-w.stop:
		return ErrStopped
	default:
	}
	select {
	case w.jobChannel <- job:
		return nil
	case <-w.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()
	return ErrStopped
}

func (w *WorkerManager) Stop() {
	w.stopOnce.Do(func() {
		logger.Info("worker manager is shutting down", "workers", w.numberOfWorker, "pending", len(w.jobChannel))
		close(w.stop)
	})
}
