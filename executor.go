package gevabroker

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gemfony-scientific/gevabroker/metrics"
	"github.com/gemfony-scientific/gevabroker/pool"
)

// drainPoll bounds how finely submitBrokered re-checks its processed queue
// and deadline while waiting on a BROKERED submission; see pollInterval in
// broker.go for the analogous Broker-side constant.
const drainPoll = 5 * time.Millisecond

// Executor is the algorithm-facing façade over one of the three
// parallelism models described in spec.md §4.4: SERIAL, THREADED, or
// BROKERED. One Executor evaluates one batch per Submit call; a new batch
// must not be submitted until the previous one has returned.
type Executor struct {
	cfg    Config
	broker *Broker
	port   *BufferPort
	token  *PortToken
	slots  pool.Pool

	logger  *zap.Logger
	metrics metrics.Provider

	submitted metrics.Counter
	timedOut  metrics.Counter
}

// ExecutorOption configures an Executor at construction.
type ExecutorOption func(*Executor)

// WithExecutorLogger attaches a logger; nil keeps the no-op logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExecutorMetrics attaches a metrics.Provider; nil keeps the no-op
// provider.
func WithExecutorMetrics(p metrics.Provider) ExecutorOption {
	return func(e *Executor) {
		if p != nil {
			e.metrics = p
		}
	}
}

// NewExecutor constructs an Executor for cfg.Parallelism. broker is required
// (and a BufferPort is enrolled against it) only for BROKERED; it may be nil
// otherwise.
func NewExecutor(cfg Config, broker *Broker, opts ...ExecutorOption) (*Executor, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:     cfg,
		broker:  broker,
		logger:  zap.NewNop(),
		metrics: metrics.NewNoopProvider(),
	}
	for _, opt := range opts {
		opt(e)
	}

	switch cfg.Parallelism {
	case Threaded:
		e.slots = newSlotPool(cfg.ThreadPoolSize)
	case Brokered:
		if broker == nil {
			return nil, ErrInvalidConfig
		}
		port := NewBufferPort(cfg.BrokerPortCapacity)
		token, err := broker.EnrollBufferPort(port)
		if err != nil {
			return nil, err
		}
		e.port = port
		e.token = token
	}

	e.submitted = e.metrics.Counter("executor.submitted")
	e.timedOut = e.metrics.Counter("executor.timed_out")

	return e, nil
}

// Close releases any BufferPort this Executor enrolled. It is a no-op for
// SERIAL and THREADED Executors.
func (e *Executor) Close() {
	if e.token != nil {
		e.token.Release()
	}
}

// Submit evaluates every DO_PROCESS item of batch and returns once the
// active wait policy considers the submission done; items left unreturned
// are marked per spec.md §7's terminal-status table before Submit returns.
// Submit never replaces a slice element: every item is mutated in place, so
// the caller's batch slice is also the result.
func (e *Executor) Submit(ctx context.Context, batch []WorkItem) error {
	switch e.cfg.Parallelism {
	case Serial:
		return e.submitSerial(ctx, batch)
	case Threaded:
		return e.submitThreaded(ctx, batch)
	case Brokered:
		return e.submitBrokered(ctx, batch)
	default:
		return ErrInvalidConfig
	}
}

func (e *Executor) submitSerial(ctx context.Context, batch []WorkItem) error {
	for _, item := range batch {
		if item.Status() != StatusDoProcess {
			continue
		}
		if ctx.Err() != nil {
			markFlagged(item, StatusErrorFlagged, "cancelled", ErrorKindCancelled)
			continue
		}
		processOne(item, func() error { return item.Process(ctx) })
	}
	return nil
}

func (e *Executor) submitThreaded(ctx context.Context, batch []WorkItem) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range batch {
		item := item
		if item.Status() != StatusDoProcess {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				markFlagged(item, StatusErrorFlagged, "cancelled", ErrorKindCancelled)
				return nil
			}
			tok := e.slots.Get()
			defer e.slots.Put(tok)
			processOne(item, func() error { return item.Process(ctx) })
			return nil
		})
	}
	return g.Wait()
}

// submitBrokered pushes every eligible item through the Executor's
// BufferPort and the Broker, then drains the processed queue under the
// active wait policy, per spec.md §4.4 and SPEC_FULL.md's Open Question
// resolutions.
func (e *Executor) submitBrokered(ctx context.Context, batch []WorkItem) error {
	subID := e.broker.NextSubmissionID()
	e.broker.RegisterSubmission(subID, e.port)
	defer e.broker.UnregisterSubmission(subID)
	e.submitted.Add(1)

	// Every item handed to a Consumer is a clone, never the algorithm's
	// original object — including on the first attempt. This keeps the
	// original exclusively owned by this drain loop's reconcileInto calls:
	// a Consumer goroutine that outlives a timeout/resubmit decision can
	// only ever race against other clones, never stomp on the object the
	// algorithm still holds a reference to.
	remaining := make(map[int]WorkItem, len(batch))
	for i, item := range batch {
		if item.Status() != StatusDoProcess {
			continue
		}
		cid := CourtierID{SubmissionID: subID, Position: i}
		item.SetCourtierID(cid)

		clone := item.Clone()
		clone.SetCourtierID(cid)
		if e.port.PushRaw(clone, e.cfg.PushTimeout) {
			remaining[i] = item
		} else {
			markFlagged(item, StatusErrorFlagged, "backpressure", ErrorKindBackpressure)
		}
	}

	start := time.Now()
	factorEstablished := true
	var deadline time.Time
	switch e.cfg.WaitPolicy {
	case WaitFixed:
		deadline = start.Add(e.cfg.WaitFixedDuration)
	case WaitFactor, ResubmitIncomplete:
		factorEstablished = false
	case WaitComplete:
		// A very large sentinel stands in for +∞: in practice only ctx
		// cancellation or a broker-driven drain ends this loop.
		deadline = start.Add(time.Duration(math.MaxInt64))
	}

	resubmitsLeft := e.cfg.ResubmitCap
	returned := 0

	for len(remaining) > 0 {
		if ctx.Err() != nil {
			for pos, item := range remaining {
				markFlagged(item, StatusErrorFlagged, "cancelled", ErrorKindCancelled)
				delete(remaining, pos)
			}
			break
		}

		if factorEstablished && !deadline.IsZero() && time.Now().After(deadline) {
			if e.cfg.WaitPolicy == ResubmitIncomplete && resubmitsLeft > 0 {
				resubmitsLeft--
				round := e.cfg.ResubmitCap - resubmitsLeft
				for pos, item := range remaining {
					clone := item.Clone()
					clone.SetCourtierID(CourtierID{SubmissionID: subID, Position: pos})
					for clone.Attempts() < round {
						clone.IncrementAttempts()
					}
					e.port.PushRaw(clone, e.cfg.PushTimeout)
				}
				deadline = deadline.Add(e.cfg.ResubmitExtension)
				continue
			}
			for pos, item := range remaining {
				markFlagged(item, StatusErrorFlagged, "timeout", ErrorKindTimeout)
				delete(remaining, pos)
				e.timedOut.Add(1)
			}
			e.logger.Debug("submission timed out", zap.Uint64("submissionID", subID))
			break
		}

		item, ok := e.port.PopProcessed(drainPoll)
		if !ok {
			continue
		}

		pos := item.CourtierID().Position
		original, known := remaining[pos]
		if !known {
			// Stale completion (e.g. a resubmitted clone's earlier sibling
			// returning after we already gave up on pos). Nothing to
			// reconcile into.
			continue
		}
		reconcileInto(original, item)
		delete(remaining, pos)
		returned++

		if !factorEstablished && returned >= e.cfg.FirstK {
			tau := time.Since(start)
			deadline = establishFactorDeadline(e.cfg, start, tau)
			factorEstablished = true
		}
	}

	return nil
}

// establishFactorDeadline computes the WAIT_FACTOR/RESUBMIT_INCOMPLETE
// deadline as start + factor·τ, per spec.md §4.4, clamped to
// [WaitFactorLowerBound, WaitFactorUpperBound] (the upper bound is ignored
// when zero). The deadline is anchored to start, not to the moment τ was
// measured, since time.Now() at that point already sits roughly τ past
// start.
func establishFactorDeadline(cfg Config, start time.Time, tau time.Duration) time.Time {
	d := time.Duration(float64(tau) * cfg.WaitFactor)
	if d < cfg.WaitFactorLowerBound {
		d = cfg.WaitFactorLowerBound
	}
	if cfg.WaitFactorUpperBound > 0 && d > cfg.WaitFactorUpperBound {
		d = cfg.WaitFactorUpperBound
	}
	return start.Add(d)
}
