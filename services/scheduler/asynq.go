package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Pinger checks backend reachability before the scheduler starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

type taskPayload struct {
	ReservationID string    `json:"reservationId"`
	FireAt        time.Time `json:"fireAt"`
}

// AsynqScheduler persists jobs in Redis through asynq. Failed tasks are retried
// with the shared RetryPolicy; exhausted tasks land in asynq's archive, which
// is the dead-letter list.
type AsynqScheduler struct {
	opts      Options
	redisOpt  asynq.RedisClientOpt
	queue     string
	client    *asynq.Client
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	server    *asynq.Server
	pinger    Pinger
}

func NewAsynqScheduler(redisOpt asynq.RedisClientOpt, queue string, pinger Pinger, opts Options) *AsynqScheduler {
	if queue == "" {
		queue = "reservations"
	}
	return &AsynqScheduler{
		opts:      opts.withDefaults(),
		redisOpt:  redisOpt,
		queue:     queue,
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		pinger:    pinger,
	}
}

func (s *AsynqScheduler) ScheduleAt(ctx context.Context, kind JobKind, reservationID string, fireAt time.Time) (string, bool, error) {
	id := JobID(kind, reservationID)
	b, err := json.Marshal(taskPayload{ReservationID: reservationID, FireAt: fireAt})
	if err != nil {
		return "", false, fmt.Errorf("marshal task payload: %w", err)
	}
	task := asynq.NewTask(string(kind), b)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(fireAt),
		asynq.TaskID(id),
		asynq.Queue(s.queue),
		asynq.MaxRetry(s.opts.Retry.MaxAttempts-1),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return id, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	s.opts.Logger.Debug("job scheduled", zap.String("jobId", id), zap.Time("fireAt", fireAt))
	return id, true, nil
}

func (s *AsynqScheduler) Cancel(_ context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	err := s.inspector.DeleteTask(s.queue, jobID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("cancel %s: %w", jobID, err)
}

func (s *AsynqScheduler) Handle(kind JobKind, h Handler) {
	s.mux.HandleFunc(string(kind), func(ctx context.Context, t *asynq.Task) error {
		var p taskPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("invalid payload for %s: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		id, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		job := Job{ID: id, Kind: kind, ReservationID: p.ReservationID, FireAt: p.FireAt, Attempt: retried + 1}

		outcome, err := safeHandle(ctx, h, job)
		if err != nil {
			if errors.Is(err, ErrPermanent) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		s.opts.Logger.Debug("job finished",
			zap.String("jobId", id),
			zap.String("kind", string(kind)),
			zap.String("outcome", string(outcome)),
		)
		s.opts.Observer.JobFinished(string(kind), string(outcome))
		return nil
	})
}

func (s *AsynqScheduler) Start(ctx context.Context) error {
	if s.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(pingCtx); err != nil {
			return fmt.Errorf("scheduler backend unreachable: %w", err)
		}
	}

	s.server = asynq.NewServer(s.redisOpt, asynq.Config{
		Concurrency: s.opts.Concurrency,
		Queues:      map[string]int{s.queue: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return s.opts.Retry.Delay(n + 1)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(s.onError),
		Logger:       s.opts.Logger.Sugar(),
	})
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	s.opts.Logger.Info("asynq scheduler started",
		zap.String("queue", s.queue),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	return nil
}

func (s *AsynqScheduler) onError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	id, _ := asynq.GetTaskID(ctx)
	dead := retried >= maxRetry || errors.Is(err, asynq.SkipRetry)

	log := s.opts.Logger.With(
		zap.String("jobId", id),
		zap.String("kind", task.Type()),
		zap.Int("attempt", retried+1),
		zap.Error(err),
	)
	if dead {
		log.Error("job dead-lettered")
	} else {
		log.Warn("job failed, retrying", zap.Duration("retryIn", s.opts.Retry.Delay(retried+1)))
	}
	s.opts.Observer.JobFailed(task.Type(), dead)
}

func (s *AsynqScheduler) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
	}
	if err := s.client.Close(); err != nil {
		s.opts.Logger.Warn("closing asynq client", zap.Error(err))
	}
	if err := s.inspector.Close(); err != nil {
		s.opts.Logger.Warn("closing asynq inspector", zap.Error(err))
	}
}

func (s *AsynqScheduler) DeadLetters(_ context.Context) ([]DeadLetter, error) {
	tasks, err := s.inspector.ListArchivedTasks(s.queue, asynq.PageSize(100))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return []DeadLetter{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archived tasks: %w", err)
	}

	out := make([]DeadLetter, 0, len(tasks))
	for _, t := range tasks {
		var p taskPayload
		_ = json.Unmarshal(t.Payload, &p)
		out = append(out, DeadLetter{
			Job: Job{
				ID:            t.ID,
				Kind:          JobKind(t.Type),
				ReservationID: p.ReservationID,
				FireAt:        p.FireAt,
				Attempt:       t.Retried + 1,
			},
			LastError: t.LastErr,
			FailedAt:  t.LastFailedAt,
		})
	}
	return out, nil
}
