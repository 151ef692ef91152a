// Package jobs provides an in-process job queue with deduplication,
// cancellation, progress tracking, and bounded retries for transient
// provider failures.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/cache"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further state changes can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Kind identifies the type of work a job performs.
type Kind string

const (
	KindIndexDocument  Kind = "index_document"
	KindGenerateAnswer Kind = "generate_answer"
)

var (
	// ErrJobConflict indicates an active job already exists for the same key.
	ErrJobConflict = errors.New("a job for this resource is already active")
	// ErrJobNotFound indicates no job exists with the given ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueClosed indicates the queue is no longer accepting work.
	ErrQueueClosed = errors.New("job queue is shut down")
)

// retryable matches provider errors that are safe to retry.
type retryable interface {
	Retryable() bool
}

// Snapshot is a point-in-time view of a job, safe to marshal.
type Snapshot struct {
	ID         uuid.UUID  `json:"id"`
	Kind       Kind       `json:"kind"`
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"`
	Stage      string     `json:"stage"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Handler performs the job's work. It reports progress through report and
// must honor ctx cancellation.
type Handler func(ctx context.Context, report func(progress float64, stage string)) error

type job struct {
	id         uuid.UUID
	kind       Kind
	key        string
	handler    Handler
	status     Status
	progress   float64
	stage      string
	errMsg     string
	attempts   int
	enqueuedAt time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	cancel     context.CancelFunc
}

// Config controls queue behavior.
type Config struct {
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Queue runs jobs on a fixed pool of workers. At most one active job exists
// per key; terminal jobs are retained for polling until evicted.
type Queue struct {
	logger *observability.Logger
	config Config
	redis  *cache.RedisClient // optional progress publisher

	mu     sync.Mutex
	jobs   map[uuid.UUID]*job
	active map[string]uuid.UUID
	work   chan uuid.UUID
	closed bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewQueue creates a stopped queue; call Start before submitting work.
func NewQueue(logger *observability.Logger, config Config, redisClient *cache.RedisClient) *Queue {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}
	return &Queue{
		logger: logger,
		config: config,
		redis:  redisClient,
		jobs:   make(map[uuid.UUID]*job),
		active: make(map[string]uuid.UUID),
		work:   make(chan uuid.UUID, config.QueueSize),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.baseCtx, q.baseCancel = context.WithCancel(ctx)
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info().Int("workers", q.config.Workers).Msg("Job queue started")
}

// Stop rejects new submissions, cancels running jobs, and waits for workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	if q.baseCancel != nil {
		q.baseCancel()
	}
	q.wg.Wait()
	q.logger.Info().Msg("Job queue stopped")
}

// Submit enqueues a job. The key deduplicates work: while a job for the same
// key is queued or running, Submit returns the existing job's ID with
// ErrJobConflict.
func (q *Queue) Submit(kind Kind, key string, handler Handler) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return uuid.Nil, ErrQueueClosed
	}
	if existing, ok := q.active[key]; ok {
		return existing, ErrJobConflict
	}

	j := &job{
		id:         uuid.New(),
		kind:       kind,
		key:        key,
		handler:    handler,
		status:     StatusQueued,
		stage:      "queued",
		enqueuedAt: time.Now().UTC(),
	}

	select {
	case q.work <- j.id:
	default:
		return uuid.Nil, fmt.Errorf("job queue is full (capacity %d)", q.config.QueueSize)
	}

	q.jobs[j.id] = j
	q.active[key] = j.id

	q.logger.Info().
		Str("job_id", j.id.String()).
		Str("kind", string(kind)).
		Str("key", key).
		Msg("Job enqueued")

	return j.id, nil
}

// Get returns a snapshot of the job's current state.
func (q *Queue) Get(id uuid.UUID) (*Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// Cancel requests cancellation of a queued or running job. Canceling a
// terminal job is a no-op.
func (q *Queue) Cancel(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.status.Terminal() {
		return nil
	}
	if j.status == StatusQueued {
		// Worker will observe the canceled status and skip the job.
		q.finishLocked(j, StatusCanceled, "canceled before start")
		return nil
	}
	if j.cancel != nil {
		j.cancel()
	}
	return nil
}

// Evict removes a terminal job from the registry.
func (q *Queue) Evict(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !j.status.Terminal() {
		return fmt.Errorf("job %s is still %s", id, j.status)
	}
	delete(q.jobs, id)
	return nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for id := range q.work {
		q.run(id)
	}
}

func (q *Queue) run(id uuid.UUID) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.status != StatusQueued {
		q.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(q.baseCtx)
	now := time.Now().UTC()
	j.status = StatusRunning
	j.stage = "starting"
	j.startedAt = &now
	j.cancel = cancel
	handler := j.handler
	kind := j.kind
	key := j.key
	q.mu.Unlock()
	defer cancel()

	log := q.logger.WithJob(id.String())
	report := func(progress float64, stage string) {
		q.setProgress(id, progress, stage)
	}

	var err error
	for attempt := 1; attempt <= q.config.MaxAttempts; attempt++ {
		q.setAttempt(id, attempt)
		err = handler(jobCtx, report)
		if err == nil || jobCtx.Err() != nil || !isRetryable(err) {
			break
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("kind", string(kind)).
			Msg("Transient job failure, retrying")
		select {
		case <-jobCtx.Done():
		case <-time.After(q.config.RetryBackoff * time.Duration(attempt)):
		}
		if jobCtx.Err() != nil {
			break
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case jobCtx.Err() != nil:
		q.finishLocked(j, StatusCanceled, "canceled")
		log.Info().Str("key", key).Msg("Job canceled")
	case err != nil:
		q.finishLocked(j, StatusFailed, err.Error())
		log.Error().Err(err).Str("key", key).Msg("Job failed")
	default:
		q.finishLocked(j, StatusSucceeded, "")
		log.Info().Str("key", key).Msg("Job succeeded")
	}
}

// finishLocked moves a job to a terminal state. Caller holds q.mu.
func (q *Queue) finishLocked(j *job, status Status, errMsg string) {
	if j.status.Terminal() {
		return
	}
	now := time.Now().UTC()
	j.status = status
	j.finishedAt = &now
	j.errMsg = errMsg
	if status == StatusSucceeded {
		j.progress = 1.0
		j.stage = "done"
	}
	delete(q.active, j.key)
	q.publishLocked(j)
}

func (q *Queue) setProgress(id uuid.UUID, progress float64, stage string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok || j.status.Terminal() {
		return
	}
	// Progress never moves backwards.
	if progress > j.progress {
		j.progress = progress
	}
	if stage != "" {
		j.stage = stage
	}
	q.publishLocked(j)
}

func (q *Queue) setAttempt(id uuid.UUID, attempt int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		j.attempts = attempt
	}
}

// publishLocked pushes a progress snapshot to the job's channel when a cache
// client is configured. Failures are logged, never fatal. Caller holds q.mu.
func (q *Queue) publishLocked(j *job) {
	if q.redis == nil {
		return
	}
	if err := q.redis.Publish(context.Background(), cache.JobChannel(j.id.String()), j.snapshot()); err != nil {
		q.logger.Warn().Err(err).Str("job_id", j.id.String()).Msg("Failed to publish job progress")
	}
}

func (j *job) snapshot() *Snapshot {
	return &Snapshot{
		ID:         j.id,
		Kind:       j.kind,
		Key:        j.key,
		Status:     j.status,
		Progress:   j.progress,
		Stage:      j.stage,
		Error:      j.errMsg,
		Attempts:   j.attempts,
		EnqueuedAt: j.enqueuedAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}

func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// IndexKey builds the dedup key for document indexing jobs.
func IndexKey(documentID uuid.UUID) string {
	return "index:" + documentID.String()
}

// GenerateKey builds the dedup key for answer generation jobs.
func GenerateKey(questionID uuid.UUID) string {
	return "generate:" + questionID.String()
}
