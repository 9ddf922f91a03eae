package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"socialgraph/pkg/logger"

	"go.uber.org/zap"
)

const (
	EventQueueWorkerCount = 2
	EventQueueSize        = 256
)

var ErrEventQueueFull = errors.New("friend event queue is full")

// EventQueue publishes friend events from a small worker pool so ledger
// operations never wait on the broker. It is itself an EventPublisher.
type EventQueue struct {
	next    EventPublisher
	tasks   chan FriendEvent
	workers int
	wg      sync.WaitGroup
	once    sync.Once

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewEventQueue(next EventPublisher, workers, size int) *EventQueue {
	if workers <= 0 {
		workers = EventQueueWorkerCount
	}
	if size <= 0 {
		size = EventQueueSize
	}
	return &EventQueue{next: next, tasks: make(chan FriendEvent, size), workers: workers}
}

// StartWorkers launches the workers. They stop once ctx is done or Close
// has drained the queue.
func (q *EventQueue) StartWorkers(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *EventQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	log := logger.Get().With(zap.Int("worker", workerID))
	log.Debug("friend event worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("friend event worker stopping")
			return
		case event, ok := <-q.tasks:
			if !ok {
				return
			}
			if err := q.next.Publish(ctx, event); err != nil {
				q.failed.Add(1)
				log.Warn("failed to publish friend event",
					zap.String("type", string(event.Type)),
					zap.Int64("request_id", event.RequestID),
					zap.Error(err))
				continue
			}
			q.published.Add(1)
		}
	}
}

// Publish enqueues event without blocking
func (q *EventQueue) Publish(_ context.Context, event FriendEvent) error {
	select {
	case q.tasks <- event:
		return nil
	default:
		q.dropped.Add(1)
		return ErrEventQueueFull
	}
}

// Close stops accepting events and waits for the workers to drain the queue.
// Publish must not be called after Close.
func (q *EventQueue) Close() {
	q.once.Do(func() { close(q.tasks) })
	q.wg.Wait()
}

func (q *EventQueue) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"queue_length": len(q.tasks),
		"worker_count": q.workers,
		"published":    q.published.Load(),
		"failed":       q.failed.Load(),
		"dropped":      q.dropped.Load(),
	}
}
