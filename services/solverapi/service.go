// Package solverapi serves Turnstile solves over HTTP. Requests become tasks
// in a Store; a fixed pool of workers drains a bounded queue and runs each
// task through a Solver.
package solverapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"turnstile-solver/eventbus"
	"turnstile-solver/solver"
)

// Solver runs one solve.
type Solver interface {
	Solve(ctx context.Context, req solver.Request) (solver.Result, error)
}

// Publisher receives an event for every finished task.
type Publisher interface {
	Publish(ctx context.Context, evt eventbus.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, eventbus.Event) error { return nil }

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrStopped   = errors.New("service stopped")
)

type Options struct {
	Workers   int
	QueueSize int
	// Headless is used for requests that do not say otherwise.
	Headless        bool
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 30 * time.Minute
	}
	return o
}

// Service owns the queue and the workers.
type Service struct {
	store  Store
	solver Solver
	events Publisher
	opts   Options
	log    zerolog.Logger
	m      *metrics

	queue   chan string
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewService wires a Service. A nil publisher disables events.
func NewService(store Store, s Solver, events Publisher, opts Options, log zerolog.Logger) *Service {
	if events == nil {
		events = nopPublisher{}
	}
	opts = opts.withDefaults()
	svc := &Service{
		store:  store,
		solver: s,
		events: events,
		opts:   opts,
		log:    log,
		queue:  make(chan string, opts.QueueSize),
	}
	svc.m = newMetrics(func() float64 { return float64(len(svc.queue)) })
	return svc
}

// Start launches the workers and the cleanup loop. Both run until Stop
// (workers) or ctx is done (cleanup).
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.startCleanup(ctx)
	s.log.Info().Int("workers", s.opts.Workers).Msg("Started solver workers")
}

// Stop closes the queue and waits for in-flight tasks.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit stores a pending task for req and queues it. When the queue is
// full the task is stored as failed and returned together with ErrQueueFull
// so callers can still point at it.
func (s *Service) Submit(ctx context.Context, req solver.Request) (*Task, error) {
	if req.Browser == "" {
		req.Browser = solver.VariantChromium
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.m.rejected.WithLabelValues("stopped").Inc()
		return nil, ErrStopped
	}

	task, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	select {
	case s.queue <- task.ID:
	default:
		task.setStatus(StatusFailed)
		task.Error = ErrQueueFull.Error()
		_ = s.store.Save(ctx, task)
		s.m.rejected.WithLabelValues("queue_full").Inc()
		return task, ErrQueueFull
	}
	s.m.submitted.Inc()
	s.log.Info().Str("task_id", task.ID).Str("url", req.URL).Msg("Queued task")
	return task, nil
}

// Task looks a task up by id.
func (s *Service) Task(ctx context.Context, id string) (*Task, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.log.With().Int("worker", id).Logger()
	log.Debug().Msg("Worker started")

	for taskID := range s.queue {
		s.process(log.WithContext(ctx), taskID)
	}
}

func (s *Service) process(ctx context.Context, taskID string) {
	log := zerolog.Ctx(ctx).With().Str("task_id", taskID).Logger()
	ctx = log.WithContext(ctx)

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		log.Warn().Err(err).Msg("Task not found")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Worker panic")
			task.setStatus(StatusFailed)
			task.Error = fmt.Sprintf("panic: %v", r)
			s.finish(ctx, task)
		}
	}()

	// Tasks still queued at shutdown are failed without starting a browser.
	if ctx.Err() != nil {
		log.Info().Msg("Skipping task after shutdown")
		task.setStatus(StatusFailed)
		task.Error = ErrStopped.Error()
		s.finish(ctx, task)
		return
	}

	task.setStatus(StatusRunning)
	if err := s.store.Save(ctx, task); err != nil {
		log.Warn().Err(err).Msg("Failed to mark task running")
	}

	res, err := s.solver.Solve(ctx, task.Request)
	if err != nil {
		log.Error().Err(err).Msg("Task failed")
		task.setStatus(StatusFailed)
		task.Error = err.Error()
	} else {
		_, found := res.Token()
		log.Info().Bool("found", found).Float64("elapsed_time", res.ElapsedTime).Msg("Task completed")
		task.setStatus(StatusCompleted)
		task.Result = &res
	}
	s.finish(ctx, task)
}

// finish stores the final task state and publishes its event. It uses a
// context that outlives shutdown so the outcome is not lost.
func (s *Service) finish(ctx context.Context, task *Task) {
	log := zerolog.Ctx(ctx)
	ctx = context.WithoutCancel(ctx)

	evt := taskEvent(task, time.Now())
	s.m.finished.WithLabelValues(outcomeLabel(evt.Type)).Inc()
	if task.Result != nil {
		s.m.duration.Observe(task.Result.ElapsedTime)
	}
	if err := s.store.Save(ctx, task); err != nil {
		log.Error().Err(err).Msg("Failed to save task")
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Msg("Failed to publish task event")
	}
}

// startCleanup schedules store cleanup on a cron until ctx is done.
func (s *Service) startCleanup(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc("@every "+s.opts.CleanupInterval.String(), func() {
		if err := s.store.Cleanup(ctx, s.opts.MaxAge); err != nil {
			s.log.Warn().Err(err).Msg("Task cleanup failed")
		}
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to schedule task cleanup")
		return
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
}

func outcomeLabel(eventType string) string {
	switch eventType {
	case eventbus.TypeSolved:
		return "solved"
	case eventbus.TypeExhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// taskEvent describes a finished task on the bus.
func taskEvent(task *Task, now time.Time) eventbus.Event {
	evt := eventbus.Event{
		ID:      eventbus.NewEventID(now),
		Source:  "turnstile-solver",
		Time:    now.UTC(),
		TaskID:  task.ID,
		Status:  string(task.Status),
		URL:     solver.NormalizeURL(task.Request.URL),
		SiteKey: task.Request.SiteKey,
	}
	if task.Result != nil {
		elapsed := task.Result.ElapsedTime
		evt.ElapsedTime = &elapsed
	}

	switch {
	case task.Status == StatusFailed:
		evt.Type = eventbus.TypeFailed
		evt.Error = task.Error
	case task.Result != nil && task.Result.Value != nil:
		evt.Type = eventbus.TypeSolved
	default:
		evt.Type = eventbus.TypeExhausted
	}
	return evt
}
