package gevabroker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gemfony-scientific/gevabroker/metrics"
	"github.com/gemfony-scientific/gevabroker/pool"
)

// inProcessConsumer is the local, non-serializing Consumer described in
// spec.md §4.2: it calls Broker.GetRaw directly on goroutines it owns,
// processes each WorkItem in place (no codec round-trip, since the item
// never leaves the process), and calls Broker.PutProcessed with the same
// object. Adapted from the teacher's dispatcher/worker split
// (dispatcher.go, worker.go): here there is no intermediate task channel
// because GetRaw already serves the dispatch role the teacher's dispatcher
// goroutine played.
type inProcessConsumer struct {
	cfg    Config
	broker *Broker
	slots  pool.Pool

	logger  *zap.Logger
	metrics metrics.Provider

	processed metrics.Counter
}

// InProcessConsumerOption configures an in-process Consumer at construction.
type InProcessConsumerOption func(*inProcessConsumer)

// WithInProcessLogger attaches a logger; nil keeps the no-op logger.
func WithInProcessLogger(l *zap.Logger) InProcessConsumerOption {
	return func(c *inProcessConsumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInProcessMetrics attaches a metrics.Provider; nil keeps the no-op
// provider.
func WithInProcessMetrics(p metrics.Provider) InProcessConsumerOption {
	return func(c *inProcessConsumer) {
		if p != nil {
			c.metrics = p
		}
	}
}

// NewInProcessConsumer builds a Consumer that serves broker.GetRaw from a
// pool of cfg.ThreadPoolSize goroutines (dynamic if zero), entirely within
// this process.
func NewInProcessConsumer(cfg Config, broker *Broker, opts ...InProcessConsumerOption) Consumer {
	c := &inProcessConsumer{
		cfg:     cfg,
		broker:  broker,
		slots:   newSlotPool(cfg.ThreadPoolSize),
		logger:  zap.NewNop(),
		metrics: metrics.NewNoopProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.processed = c.metrics.Counter("consumer.inprocess.processed")
	return c
}

func (c *inProcessConsumer) Descriptor() ConsumerDescriptor {
	return ConsumerDescriptor{
		Name:               "inprocess",
		CapacityRestricted: c.cfg.ConsumerCapacityRestricted,
		Parallelism:        c.cfg.ConsumerParallelism,
		Remote:             false,
	}
}

// Run pulls raw items from the Broker until ctx is cancelled, dispatching
// each onto a worker goroutine bounded by the slot pool, and joins all
// in-flight goroutines before returning, per spec.md §5's "each Consumer
// owns its own service threads".
func (c *inProcessConsumer) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			break
		}

		item, ok := c.broker.GetRaw(c.cfg.BrokerDispatchTimeout)
		if !ok {
			if ctx.Err() != nil {
				break
			}
			continue
		}

		tok := c.slots.Get()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.slots.Put(tok)

			processOne(item, func() error { return item.Process(ctx) })
			c.processed.Add(1)
			c.broker.PutProcessed(item)
		}()
	}

	wg.Wait()
}
