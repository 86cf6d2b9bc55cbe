package gevabroker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gemfony-scientific/gevabroker/metrics"
)

// RunState is the Broker's process-wide lifecycle state, per spec.md §3.
type RunState int32

const (
	Initializing RunState = iota
	Running
	Draining
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case Draining:
		return "DRAINING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// pollInterval bounds how finely GetRaw re-checks for newly pushed raw
// items while all ports are empty; it stands in for the condition-variable
// wakeup spec.md §5 describes, at the cost of up to pollInterval of extra
// latency — acceptable per spec.md §8 property 5's explicit implementation
// slack ε.
const pollInterval = 5 * time.Millisecond

// Broker is the process-wide rendezvous between producer BufferPorts and
// Consumers described in spec.md §4.3. Exactly one Broker exists per
// process; per spec.md §9's design note it is modeled as an explicit value
// constructed once at program start and passed by reference to Executors
// and Consumers, rather than as a lazily-initialized singleton helper.
type Broker struct {
	mu    sync.RWMutex
	ports []*BufferPort
	cursor int

	consumers []Consumer
	consWG    sync.WaitGroup

	subToPort map[uint64]*BufferPort
	subSeq    atomic.Uint64

	state         atomic.Int32
	drainDeadline atomic.Int64 // unix nano; valid once state >= Draining

	cfg     Config
	logger  *zap.Logger
	metrics metrics.Provider

	dispatched metrics.Counter
	returned   metrics.Counter
	dropped    metrics.Counter
}

// BrokerOption configures a Broker at construction.
type BrokerOption func(*Broker)

// WithBrokerLogger attaches a logger; nil keeps the no-op logger.
func WithBrokerLogger(l *zap.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBrokerMetrics attaches a metrics.Provider; nil keeps the no-op provider.
func WithBrokerMetrics(p metrics.Provider) BrokerOption {
	return func(b *Broker) {
		if p != nil {
			b.metrics = p
		}
	}
}

// NewBroker constructs the process-wide Broker. It starts in state
// INITIALIZING and transitions to RUNNING when the first Consumer is
// enrolled, per spec.md §3.
func NewBroker(cfg Config, opts ...BrokerOption) *Broker {
	b := &Broker{
		cfg:       cfg,
		subToPort: make(map[uint64]*BufferPort),
		logger:    zap.NewNop(),
		metrics:   metrics.NewNoopProvider(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.dispatched = b.metrics.Counter("broker.dispatched")
	b.returned = b.metrics.Counter("broker.returned")
	b.dropped = b.metrics.Counter("broker.dropped")
	return b
}

// State reports the Broker's current run state.
func (b *Broker) State() RunState { return RunState(b.state.Load()) }

// EnrollBufferPort registers port with the Broker and returns a token whose
// Release deregisters it. Enrollment is only permitted while RUNNING.
func (b *Broker) EnrollBufferPort(port *BufferPort) (*PortToken, error) {
	b.mu.Lock()
	if RunState(b.state.Load()) != Running {
		b.mu.Unlock()
		return nil, ErrBrokerNotRunning
	}
	b.ports = append(b.ports, port)
	b.mu.Unlock()

	return &PortToken{release: func() {
		b.mu.Lock()
		for i, p := range b.ports {
			if p == port {
				b.ports = append(b.ports[:i], b.ports[i+1:]...)
				if b.cursor > i {
					b.cursor--
				}
				break
			}
		}
		b.mu.Unlock()
		port.orphan()
	}}, nil
}

// EnrollConsumer transfers ownership of consumer to the Broker, which
// starts its service threads in a new goroutine and transitions to RUNNING
// if this is the first enrolled Consumer.
func (b *Broker) EnrollConsumer(ctx context.Context, consumer Consumer) {
	b.mu.Lock()
	b.consumers = append(b.consumers, consumer)
	if b.state.Load() == int32(Initializing) {
		b.state.Store(int32(Running))
	}
	b.mu.Unlock()

	b.consWG.Add(1)
	go func() {
		defer b.consWG.Done()
		consumer.Run(ctx)
	}()
}

// NextSubmissionID returns a process-wide unique submission id, used by
// BROKERED Executors to stamp courtier ids and to key put_processed
// routing.
func (b *Broker) NextSubmissionID() uint64 {
	return b.subSeq.Add(1)
}

// RegisterSubmission keys subID to port for the duration of one submission,
// so PutProcessed can route returned items back to their originating port.
func (b *Broker) RegisterSubmission(subID uint64, port *BufferPort) {
	b.mu.Lock()
	b.subToPort[subID] = port
	b.mu.Unlock()
}

// UnregisterSubmission releases the subID -> port mapping once a submission
// has fully reconciled, bounding the map's size.
func (b *Broker) UnregisterSubmission(subID uint64) {
	b.mu.Lock()
	delete(b.subToPort, subID)
	b.mu.Unlock()
}

// GetRaw performs weighted round robin across currently non-empty
// BufferPorts (see broker_dispatch.go), advancing the chosen port's
// last-serviced counter. It blocks up to timeout if all ports are empty,
// and returns false once the Broker stops serving GetRaw (grace expired
// during DRAINING, or STOPPED).
func (b *Broker) GetRaw(timeout time.Duration) (WorkItem, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if !b.acceptingGetRaw() {
			return nil, false
		}
		if item, ok := b.tryGetRaw(); ok {
			b.dispatched.Add(1)
			return item, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(pollInterval)
	}
}

func (b *Broker) acceptingGetRaw() bool {
	state := RunState(b.state.Load())
	switch state {
	case Stopped:
		return false
	case Draining:
		deadline := b.drainDeadline.Load()
		return deadline == 0 || time.Now().UnixNano() < deadline
	default:
		return true
	}
}

// PutProcessed routes item to the BufferPort its courtier id's submission
// was registered against, per spec.md §4.3. If that port has been
// deregistered, the item is dropped silently. If the port's processed
// queue stays full beyond BrokerDispatchTimeout, the item is dropped as
// ERROR_FLAGGED("processed queue full"); the producer detects the missing
// position during reconciliation.
func (b *Broker) PutProcessed(item WorkItem) {
	cid := item.CourtierID()

	b.mu.RLock()
	port, ok := b.subToPort[cid.SubmissionID]
	b.mu.RUnlock()

	if !ok {
		b.dropped.Add(1)
		b.logger.Debug("put_processed: submission unknown, dropping",
			zap.Uint64("submissionID", cid.SubmissionID), zap.Int("position", cid.Position))
		return
	}

	if port.PushProcessed(item, b.cfg.BrokerDispatchTimeout) {
		b.returned.Add(1)
		return
	}

	markFlagged(item, StatusErrorFlagged, "processed queue full", ErrorKindProcessedQueueFull)
	b.dropped.Add(1)
	b.logger.Warn("put_processed: processed queue full, dropping",
		zap.Uint64("submissionID", cid.SubmissionID), zap.Int("position", cid.Position))
}

// Shutdown initiates DRAINING: after grace, GetRaw stops being served and
// any raw items still sitting in enrolled ports are marked
// ERROR_FLAGGED("drained") and, if their owning port is still registered,
// delivered to its processed queue (see SPEC_FULL.md §11's resolution of the
// corresponding open question). Once draining completes the Broker moves
// to STOPPED.
func (b *Broker) Shutdown(ctx context.Context, grace time.Duration) {
	b.state.Store(int32(Draining))
	b.drainDeadline.Store(time.Now().Add(grace).UnixNano())

	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(grace):
		}
		b.drainRemaining()
		b.state.Store(int32(Stopped))
	}()
}

func (b *Broker) drainRemaining() {
	b.mu.RLock()
	ports := append([]*BufferPort(nil), b.ports...)
	b.mu.RUnlock()

	for _, port := range ports {
		for {
			item, ok := port.PopRaw(0)
			if !ok {
				break
			}
			markFlagged(item, StatusErrorFlagged, "drained", ErrorKindDrained)
			if !port.IsOrphaned() {
				port.PushProcessed(item, b.cfg.BrokerDispatchTimeout)
			}
			b.dropped.Add(1)
		}
	}
}

// Wait blocks until every enrolled Consumer's Run has returned (i.e. until
// all service threads the Broker started have joined).
func (b *Broker) Wait() {
	b.consWG.Wait()
}
