package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures either scheduler backend.
type Options struct {
	Concurrency int
	Retry       RetryPolicy
	Logger      *zap.Logger
	Observer    Observer
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

type entry struct {
	job   Job
	index int
}

type jobHeap []*entry

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].job.FireAt.Before(h[j].job.FireAt) }
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// MemoryScheduler keeps jobs in a min-heap ordered by fire time and runs them
// on a bounded worker pool. Jobs do not survive a restart; production uses
// AsynqScheduler.
type MemoryScheduler struct {
	opts Options

	mu       sync.Mutex
	queue    jobHeap
	pending  map[string]*entry
	handlers map[JobKind]Handler
	dead     []DeadLetter
	started  bool

	wake   chan struct{}
	work   chan *entry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemoryScheduler(opts Options) *MemoryScheduler {
	return &MemoryScheduler{
		opts:     opts.withDefaults(),
		pending:  make(map[string]*entry),
		handlers: make(map[JobKind]Handler),
		wake:     make(chan struct{}, 1),
		work:     make(chan *entry),
	}
}

func (m *MemoryScheduler) Handle(kind JobKind, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

func (m *MemoryScheduler) ScheduleAt(_ context.Context, kind JobKind, reservationID string, fireAt time.Time) (string, bool, error) {
	id := JobID(kind, reservationID)
	m.mu.Lock()
	if _, exists := m.pending[id]; exists {
		m.mu.Unlock()
		return id, false, nil
	}
	m.pushLocked(Job{ID: id, Kind: kind, ReservationID: reservationID, FireAt: fireAt, Attempt: 1})
	m.mu.Unlock()
	m.notify()
	return id, true, nil
}

func (m *MemoryScheduler) pushLocked(job Job) {
	e := &entry{job: job}
	heap.Push(&m.queue, e)
	m.pending[job.ID] = e
}

func (m *MemoryScheduler) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *MemoryScheduler) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[jobID]
	if !ok {
		return nil
	}
	heap.Remove(&m.queue, e.index)
	delete(m.pending, jobID)
	return nil
}

// Pending reports how many jobs are queued (including scheduled retries).
func (m *MemoryScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *MemoryScheduler) DeadLetters(_ context.Context) ([]DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.dead...), nil
}

func (m *MemoryScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("scheduler already started")
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.dispatch(ctx)
	for i := 0; i < m.opts.Concurrency; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	m.opts.Logger.Info("memory scheduler started", zap.Int("concurrency", m.opts.Concurrency))
	return nil
}

func (m *MemoryScheduler) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// dispatch hands due jobs to workers and sleeps until the next fire time.
func (m *MemoryScheduler) dispatch(ctx context.Context) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		var due *entry
		wait := time.Duration(-1)
		if len(m.queue) > 0 {
			next := m.queue[0]
			if d := time.Until(next.job.FireAt); d <= 0 {
				due = heap.Pop(&m.queue).(*entry)
				delete(m.pending, due.job.ID)
			} else {
				wait = d
			}
		}
		m.mu.Unlock()

		if due != nil {
			select {
			case m.work <- due:
			case <-ctx.Done():
				return
			}
			continue
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if wait >= 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-m.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (m *MemoryScheduler) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-m.work:
			m.run(ctx, e.job)
		}
	}
}

func (m *MemoryScheduler) run(ctx context.Context, job Job) {
	log := m.opts.Logger.With(
		zap.String("jobId", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("reservationId", job.ReservationID),
		zap.Int("attempt", job.Attempt),
	)

	m.mu.Lock()
	h, ok := m.handlers[job.Kind]
	m.mu.Unlock()
	if !ok {
		m.fail(job, fmt.Errorf("no handler registered for %s: %w", job.Kind, ErrPermanent), log)
		return
	}

	outcome, err := safeHandle(ctx, h, job)
	if err != nil {
		m.fail(job, err, log)
		return
	}
	log.Debug("job finished", zap.String("outcome", string(outcome)))
	m.opts.Observer.JobFinished(string(job.Kind), string(outcome))
}

func safeHandle(ctx context.Context, h Handler, job Job) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

func (m *MemoryScheduler) fail(job Job, err error, log *zap.Logger) {
	if errors.Is(err, ErrPermanent) || job.Attempt >= m.opts.Retry.MaxAttempts {
		log.Error("job dead-lettered", zap.Error(err))
		m.mu.Lock()
		m.dead = append(m.dead, DeadLetter{Job: job, LastError: err.Error(), FailedAt: time.Now()})
		m.mu.Unlock()
		m.opts.Observer.JobFailed(string(job.Kind), true)
		return
	}

	delay := m.opts.Retry.Delay(job.Attempt)
	log.Warn("job failed, retrying", zap.Error(err), zap.Duration("retryIn", delay))
	m.opts.Observer.JobFailed(string(job.Kind), false)

	retry := job
	retry.Attempt++
	retry.FireAt = time.Now().Add(delay)
	m.mu.Lock()
	if _, exists := m.pending[retry.ID]; !exists {
		m.pushLocked(retry)
	}
	m.mu.Unlock()
	m.notify()
}
