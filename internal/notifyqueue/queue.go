// Package notifyqueue buffers evaluated, anti-spam-permitted signal
// notifications for one consumer goroutine to deliver via a
// model.Sender, retrying transient failures with exponential backoff
// and permanently blocklisting users whose transport reports them as
// blocked.
package notifyqueue

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"tradingsignalcore/internal/model"
	"tradingsignalcore/internal/notification"
)

// Job is one queued notification: a single (user, signal) delivery.
type Job struct {
	UserID     int64
	Message    string
	Critical   bool
	SignalUID  string
	EnqueuedAt time.Time
	Attempts   int
}

// priority returns the heap ordering key: critical jobs (0) sort
// before normal ones (1); ties break by enqueue time (FIFO).
func (j *Job) priority() int {
	if j.Critical {
		return 0
	}
	return 1
}

// jobHeap is a container/heap min-heap on (priority, enqueuedAt).
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority() != h[j].priority() {
		return h[i].priority() < h[j].priority()
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*Job))
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe priority queue of delivery Jobs with a single
// draining consumer (Run).
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap jobHeap

	maxRetries  int
	retryBaseMS int
	maxDepth    int

	sender   model.Sender
	blocked  map[int64]bool
	blockedMu sync.RWMutex

	OnDeliver func(d model.DeliveryRecord)
	OnDepthChange func(depth int)
}

// New creates a Queue bounded at maxDepth, delivering via sender with
// up to maxRetries attempts spaced by retryBaseMS * 2^attempt.
func New(sender model.Sender, maxRetries, retryBaseMS, maxDepth int) *Queue {
	q := &Queue{
		maxRetries:  maxRetries,
		retryBaseMS: retryBaseMS,
		maxDepth:    maxDepth,
		sender:      sender,
		blocked:     make(map[int64]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// IsBlocked reports whether userID has been permanently blocked by a
// prior terminal delivery failure.
func (q *Queue) IsBlocked(userID int64) bool {
	q.blockedMu.RLock()
	defer q.blockedMu.RUnlock()
	return q.blocked[userID]
}

// Enqueue pushes a new job, dropping it if it is non-critical and the
// queue is at maxDepth (backpressure: a full queue means the consumer
// is falling behind the budget, and holding more jobs only makes
// delivery latency worse). Critical jobs are always accepted.
func (q *Queue) Enqueue(j *Job) bool {
	if q.IsBlocked(j.UserID) {
		return false
	}
	j.EnqueuedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) >= q.maxDepth && !j.Critical {
		return false
	}
	heap.Push(&q.heap, j)
	if q.OnDepthChange != nil {
		q.OnDepthChange(len(q.heap))
	}
	q.cond.Signal()
	return true
}

// Depth returns the current queue length.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Run drains the queue until ctx is cancelled, delivering one job at a
// time and retrying transient failures in-place before moving on.
func (q *Queue) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j := q.popOrNil(ctx)
		if j == nil {
			return
		}
		q.deliver(ctx, j)
	}
}

// popOrNil wraps pop with a ctx check so a cancelled queue doesn't
// block forever waiting on an empty heap.
func (q *Queue) popOrNil(ctx context.Context) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 {
		if ctx.Err() != nil {
			return nil
		}
		q.cond.Wait()
	}
	j := heap.Pop(&q.heap).(*Job)
	if q.OnDepthChange != nil {
		q.OnDepthChange(len(q.heap))
	}
	return j
}

func (q *Queue) deliver(ctx context.Context, j *Job) {
	for {
		j.Attempts++
		latencyMS, err := q.sender.Send(ctx, j.UserID, j.Message, j.Critical)

		record := model.DeliveryRecord{
			SignalID:    j.SignalUID,
			UserID:      j.UserID,
			Attempts:    j.Attempts,
			LastAttempt: time.Now(),
			LatencyMS:   latencyMS,
		}

		if err == nil {
			record.Delivered = true
			q.report(record)
			return
		}

		if err == notification.ErrUserBlocked {
			record.Blocked = true
			record.LastError = err.Error()
			q.blockedMu.Lock()
			q.blocked[j.UserID] = true
			q.blockedMu.Unlock()
			q.report(record)
			log.Printf("[notifyqueue] user=%d blocked, dropping job after %d attempts", j.UserID, j.Attempts)
			return
		}

		record.LastError = err.Error()
		if j.Attempts >= q.maxRetries {
			q.report(record)
			log.Printf("[notifyqueue] user=%d delivery failed permanently after %d attempts: %v", j.UserID, j.Attempts, err)
			return
		}

		backoff := time.Duration(q.retryBaseMS) * time.Millisecond * time.Duration(1<<uint(j.Attempts-1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (q *Queue) report(d model.DeliveryRecord) {
	if q.OnDeliver != nil {
		q.OnDeliver(d)
	}
}
