package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"hackercast/internal/breaker"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/stage"
)

// Request binds one item to one stage attempt loop.
type Request struct {
	// Name is the stage's short name (fetch, extract, script, audio, publish).
	Name string
	// Class is the external dependency class guarded by a shared breaker
	// and concurrency slot (hackernews, scraper, gemini, tts, transistor).
	Class string
	// Handler performs the transformation.
	Handler stage.Handler
	// Policy bounds attempts, per-try wall clock, and backoff.
	Policy Policy
	// Item is the record being advanced. The executor mutates it: payload
	// fields on success, attempt bookkeeping on failure.
	Item *queue.Item
}

// Executor runs the attempt loop for a single stage of a single item:
// breaker consultation, per-class concurrency slot, per-try timeout, retry
// classification, jittered backoff, and crash-safe attempt persistence.
//
// One executor is shared by all concurrently running items; everything
// per-item lives in the Request.
type Executor struct {
	store    *queue.Store
	breakers *breaker.Registry
	limit    int
	logger   *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// Option customizes executor construction.
type Option func(*Executor)

// WithSleeper overrides how backoff delays are waited out. Intended for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithJitter overrides the backoff jitter source. Intended for tests.
func WithJitter(jitter func() float64) Option {
	return func(e *Executor) {
		if jitter != nil {
			e.jitter = jitter
		}
	}
}

// NewExecutor constructs an executor. limit is the per-dependency-class
// concurrency bound; at most limit calls run against any one class at a time.
func NewExecutor(store *queue.Store, breakers *breaker.Registry, limit int, logger *slog.Logger, opts ...Option) *Executor {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Executor{
		store:    store,
		breakers: breakers,
		limit:    limit,
		logger:   logging.NewComponentLogger(logger, "stageexec"),
		sleep:    sleepContext,
		jitter:   rand.Float64,
		slots:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives the attempt loop until the stage succeeds or fails terminally.
// On success the item carries the handler's output and a nil error is
// returned; the caller owns advancing the stage. On a non-nil return the
// failure is final for this run: the error classifies as permanent, carries
// the last retryable kind after the attempt budget is spent, or is
// batch_deadline_exceeded when the parent deadline expired. Plain context
// cancellation is returned unwrapped and leaves the item untouched, so a
// shutdown mid-stage resumes from the same attempt budget. Attempt count and
// last error are persisted after every failed try so a crashed process
// resumes with an accurate budget.
func (e *Executor) Run(ctx context.Context, req Request) error {
	req.Policy = req.Policy.withDefaults()
	if req.Item.AttemptCount >= req.Policy.MaxAttempts {
		return e.exhaustedBudget(req)
	}
	br := e.breakers.Get(req.Class)
	log := e.logger.With(
		logging.String(logging.FieldBatchID, req.Item.BatchID),
		logging.Int64(logging.FieldItemID, req.Item.ItemID),
		logging.String(logging.FieldStage, req.Name),
		logging.String(logging.FieldDependency, req.Class),
	)

	for {
		if ctx.Err() != nil {
			return e.deadlineFailure(req, ctx.Err())
		}

		err := e.attempt(ctx, req, br)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		kind := services.Classify(err)
		req.Item.AttemptCount++
		req.Item.LastError = services.Details(err)
		req.Item.ErrorKind = string(kind)
		if perr := e.store.Update(context.WithoutCancel(ctx), req.Item); perr != nil {
			log.Error("persist attempt state failed",
				logging.Args(logging.Int(logging.FieldAttempt, req.Item.AttemptCount), logging.Error(perr))...)
		}

		if kind == services.KindInternal {
			logging.ErrorWithContext(log, "stage attempt hit an internal fault", "stage_internal_error",
				logging.Int(logging.FieldAttempt, req.Item.AttemptCount),
				logging.Error(err))
		}
		if kind == services.KindBatchDeadline {
			return err
		}
		if !services.Retryable(err) {
			log.Warn("stage failed permanently",
				logging.Args(
					logging.Int(logging.FieldAttempt, req.Item.AttemptCount),
					logging.String(logging.FieldErrorKind, string(kind)),
					logging.Error(err))...)
			return err
		}
		if req.Item.AttemptCount >= req.Policy.MaxAttempts {
			log.Warn("stage attempt budget exhausted",
				logging.Args(
					logging.Int(logging.FieldAttempt, req.Item.AttemptCount),
					logging.String(logging.FieldErrorKind, string(kind)),
					logging.Error(err))...)
			return err
		}

		delay := req.Policy.backoff(req.Item.AttemptCount, e.jitter)
		log.Info("retrying stage",
			logging.Args(
				logging.Int(logging.FieldAttempt, req.Item.AttemptCount),
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.Duration("delay", delay))...)
		if serr := e.sleep(ctx, delay); serr != nil {
			return e.deadlineFailure(req, serr)
		}
	}
}

// attempt performs one try: breaker gate, slot, timed handler call, and
// breaker accounting.
func (e *Executor) attempt(ctx context.Context, req Request, br *breaker.Breaker) error {
	ok, probe := br.Allow()
	if !ok {
		return services.Wrap(services.ErrDependencyUnavailable, req.Name, "call dependency",
			fmt.Sprintf("Circuit breaker for %s is open", req.Class), nil)
	}

	err := e.call(ctx, req)
	e.reportToBreaker(br, probe, err)
	return err
}

func (e *Executor) call(ctx context.Context, req Request) error {
	release, err := e.acquireSlot(ctx, req.Class)
	if err != nil {
		return e.deadlineFailure(req, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, req.Policy.Timeout)
	defer cancel()

	// The handler works on a copy so an abandoned or failed try never
	// leaves partial payload writes on the item.
	work := *req.Item
	err = e.invoke(attemptCtx, req, &work, release)
	if err == nil {
		*req.Item = work
		return nil
	}

	// A per-try timeout that fired because the parent expired is the
	// batch's deadline, not the stage's.
	if parentErr := ctx.Err(); parentErr != nil {
		return e.deadlineFailure(req, parentErr)
	}
	return err
}

// invoke runs the handler in its own goroutine so a call that ignores
// cancellation can be abandoned at the attempt deadline. The concurrency
// slot is released by the goroutine itself, not the caller: an abandoned
// call keeps its slot until it actually returns, which preserves the
// per-class bound even for runaway dependencies.
func (e *Executor) invoke(ctx context.Context, req Request, item *queue.Item, release func()) error {
	done := make(chan error, 1)
	go func() {
		defer release()
		if err := req.Handler.Prepare(ctx, item); err != nil {
			done <- err
			return
		}
		done <- req.Handler.Execute(ctx, item)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, req.Name, "execute",
				fmt.Sprintf("Stage attempt exceeded its %s budget", req.Policy.Timeout), ctx.Err())
		}
		return ctx.Err()
	}
}

// reportToBreaker records the attempt outcome. Successes always count.
// Failures count only when they say something about the dependency's
// health. A claimed probe must always resolve the half-open state: a probe
// that died without reaching the dependency reopens the breaker, while a
// probe the dependency answered (even with a permanent verdict) closes it.
func (e *Executor) reportToBreaker(br *breaker.Breaker, probe bool, err error) {
	switch {
	case err == nil:
		br.MarkSuccess()
	case services.DependencyFault(err):
		br.MarkFailure()
	case probe:
		kind := services.Classify(err)
		if errors.Is(err, context.Canceled) || kind == services.KindBatchDeadline {
			br.MarkFailure()
		} else {
			br.MarkSuccess()
		}
	}
}

func (e *Executor) deadlineFailure(req Request, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return services.Wrap(services.ErrBatchDeadline, req.Name, "execute",
		"Batch deadline elapsed before the stage completed", cause)
}

// exhaustedBudget reports an item that arrived with its attempt budget
// already spent. That happens when a crash lands between the final failed
// attempt's persist and the dead-letter write; the recorded kind is kept so
// the dead letter still names the true cause.
func (e *Executor) exhaustedBudget(req Request) error {
	return services.Wrap(markerForKind(services.Kind(req.Item.ErrorKind)), req.Name, "retry",
		fmt.Sprintf("Attempt budget of %d is already spent", req.Policy.MaxAttempts), nil)
}

func markerForKind(kind services.Kind) error {
	switch kind {
	case services.KindTimeout:
		return services.ErrTimeout
	case services.KindDependencyUnavailable:
		return services.ErrDependencyUnavailable
	case services.KindTransient:
		return services.ErrTransient
	case services.KindPermanent:
		return services.ErrPermanent
	case services.KindBatchDeadline:
		return services.ErrBatchDeadline
	default:
		return services.ErrInternal
	}
}

func (e *Executor) acquireSlot(ctx context.Context, class string) (func(), error) {
	slot := e.slotFor(class)
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) slotFor(class string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot, ok := e.slots[class]
	if !ok {
		slot = make(chan struct{}, e.limit)
		e.slots[class] = slot
	}
	return slot
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
