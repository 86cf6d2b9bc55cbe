package gevabroker

import "context"

// Consumer pulls raw WorkItems from the Broker, arranges their processing,
// and pushes processed WorkItems back. Variants: the in-process thread-pool
// Consumer in this package, and the networked TCP server/client Consumer in
// the tcp subpackage.
type Consumer interface {
	// Descriptor returns the registration metadata the Broker advertises
	// alongside this Consumer (capacity-restricted, parallelism, remote).
	Descriptor() ConsumerDescriptor

	// Run starts the Consumer's service threads and blocks until ctx is
	// cancelled or the Consumer decides to stop on its own (e.g. the TCP
	// server's listener failing). The Broker calls Run in its own
	// goroutine from EnrollConsumer; Consumer implementations own no
	// threads beyond what Run spawns and joins before returning, per
	// spec.md §5 ("each Consumer owns its own service threads").
	Run(ctx context.Context)
}

// ConsumerDescriptor is the registration metadata a Consumer advertises to
// the Broker, per spec.md §3's Broker state.
type ConsumerDescriptor struct {
	// Name identifies the Consumer for logging/metrics.
	Name string
	// CapacityRestricted reports whether this Consumer can give
	// back-pressure.
	CapacityRestricted bool
	// Parallelism is a nominal hint used by admission control; per
	// spec.md's open question it is advertised but not consistently used
	// (this core's Broker round robin does not weight by it — see
	// SPEC_FULL.md §11).
	Parallelism uint
	// Remote reports whether this Consumer is remote, which affects
	// serialization policy (remote Consumers always go through a codec;
	// in-process Consumers never serialize).
	Remote bool
}
