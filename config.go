package gevabroker

import "time"

// WaitPolicy selects the Executor's rule for when a submission is
// considered done enough to return control to the algorithm. Exactly one
// policy is active per Executor.
type WaitPolicy int

const (
	// WaitComplete waits for every expected item; deadline = +∞ in
	// practice (a very large sentinel, per spec.md §5).
	WaitComplete WaitPolicy = iota
	// WaitFactor measures τ = time to the first FirstK returned items and
	// sets the deadline to submission_start + Factor·τ.
	WaitFactor
	// WaitFixed sets the deadline to submission_start + FixedDuration.
	WaitFixed
	// ResubmitIncomplete behaves like WaitFactor, then re-pushes clones of
	// unreturned items with incremented attempt counters up to ResubmitCap
	// times, extending the deadline by ResubmitExtension each round.
	ResubmitIncomplete
)

func (p WaitPolicy) String() string {
	switch p {
	case WaitComplete:
		return "WAIT_COMPLETE"
	case WaitFactor:
		return "WAIT_FACTOR"
	case WaitFixed:
		return "WAIT_FIXED"
	case ResubmitIncomplete:
		return "RESUBMIT_INCOMPLETE"
	default:
		return "WAIT_UNKNOWN"
	}
}

// ParallelismModel selects how an Executor evaluates the items of a batch.
type ParallelismModel int

const (
	// Serial evaluates each item inline on the calling thread, in order.
	Serial ParallelismModel = iota
	// Threaded evaluates items on a fixed-size thread pool owned by the
	// Executor; all submissions complete before Submit returns.
	Threaded
	// Brokered routes items through a BufferPort and the process-wide
	// Broker to whatever Consumers are enrolled, local or remote.
	Brokered
)

// Config holds every tunable named in spec.md §6's configuration surface,
// expressed as Go fields instead of config-file keys (file parsing is out
// of scope per spec.md §1).
type Config struct {
	// BrokerPortCapacity is broker.port_capacity: the capacity of each
	// BufferPort side (raw and processed).
	BrokerPortCapacity uint

	// BrokerDispatchTimeout is broker.dispatch_timeout: how long
	// Broker.GetRaw waits when all ports are empty.
	BrokerDispatchTimeout time.Duration

	// WaitPolicy is executor.wait_policy.
	WaitPolicy WaitPolicy
	// WaitFactor is executor.wait_factor: the τ multiplier for WaitFactor.
	WaitFactor float64
	// WaitFixedDuration is executor.wait_fixed_ms.
	WaitFixedDuration time.Duration
	// FirstK is executor.first_k: how many completions establish τ.
	FirstK int
	// WaitFactorLowerBound floors the WaitFactor deadline.
	WaitFactorLowerBound time.Duration
	// WaitFactorUpperBound, if non-zero, ceilings the WaitFactor deadline.
	WaitFactorUpperBound time.Duration
	// ResubmitCap is executor.resubmit_cap: max re-push rounds.
	ResubmitCap int
	// ResubmitExtension extends the deadline by this much per resubmit
	// round.
	ResubmitExtension time.Duration

	// PushTimeout bounds how long Submit blocks pushing one item onto a
	// BufferPort's raw queue before marking it ERROR_FLAGGED("backpressure").
	PushTimeout time.Duration

	// Parallelism selects SERIAL, THREADED, or BROKERED.
	Parallelism ParallelismModel
	// ThreadPoolSize sizes the THREADED executor's and the in-process
	// Consumer's fixed worker pool. Zero selects a dynamic pool.
	ThreadPoolSize uint

	// ConsumerParallelism is the nominal parallelism hint a Consumer
	// advertises to the Broker (admission-control hint only; see
	// SPEC_FULL.md §11 on round-robin weighting).
	ConsumerParallelism uint
	// ConsumerCapacityRestricted marks whether a Consumer can give
	// back-pressure.
	ConsumerCapacityRestricted bool
	// ConsumerRemote marks whether a Consumer is remote (affects
	// serialization policy).
	ConsumerRemote bool

	// TCPPort is consumer.tcp.port.
	TCPPort int
	// TCPThreads is consumer.tcp.threads: size of the server's session
	// goroutine pool equivalent of the ASIO io_context thread pool.
	TCPThreads uint
	// TCPFormat is consumer.tcp.format: one of text, xml, binary.
	TCPFormat string
	// TCPGetDataTimeout bounds the server's per-GETDATA wait on
	// Broker.GetRaw before replying NODATA.
	TCPGetDataTimeout time.Duration
	// TCPBatchHint is the GETDATA batch size: the client sends it as its
	// requested count in each GETDATA body, and the server caps every
	// request at this value (SPEC_FULL.md §6). It is not part of the
	// COMPUTE handshake.
	TCPBatchHint int

	// ClientReconnectMax is client.reconnect_max.
	ClientReconnectMax int
	// ClientBackoffBase is client.backoff_base_ms.
	ClientBackoffBase time.Duration
	// ClientBackoffCap is client.backoff_cap_ms.
	ClientBackoffCap time.Duration
}

// DefaultConfig returns a Config populated with spec.md §6's documented
// defaults, for callers (cmd/ binaries, tests) to override selectively.
func DefaultConfig() Config { return defaultConfig() }

// ValidateConfig exposes validateConfig to callers outside this package
// that construct a Config by hand (e.g. cmd/ binaries after applying
// flags).
func ValidateConfig(cfg *Config) error { return validateConfig(cfg) }

// defaultConfig centralizes default values for Config, the way the teacher's
// defaults.go centralizes Workers' Config defaults.
func defaultConfig() Config {
	return Config{
		BrokerPortCapacity:         256,
		BrokerDispatchTimeout:      200 * time.Millisecond,
		WaitPolicy:                 WaitComplete,
		WaitFactor:                 3.0,
		WaitFixedDuration:          10 * time.Second,
		FirstK:                     1,
		WaitFactorLowerBound:       50 * time.Millisecond,
		WaitFactorUpperBound:       0,
		ResubmitCap:                1,
		ResubmitExtension:          1 * time.Second,
		PushTimeout:                time.Second,
		Parallelism:                Serial,
		ThreadPoolSize:             0,
		ConsumerParallelism:        1,
		ConsumerCapacityRestricted: false,
		ConsumerRemote:             false,
		TCPPort:                    10000,
		TCPThreads:                 4,
		TCPFormat:                  "binary",
		TCPGetDataTimeout:          200 * time.Millisecond,
		TCPBatchHint:               1,
		ClientReconnectMax:         10,
		ClientBackoffBase:          100 * time.Millisecond,
		ClientBackoffCap:           30 * time.Second,
	}
}

// validateConfig performs the lightweight invariant checks spec.md §7
// requires at construction time ("configuration error: detected at
// construction; fatal").
func validateConfig(cfg *Config) error {
	if cfg.BrokerPortCapacity == 0 {
		return ErrInvalidConfig
	}
	if cfg.FirstK < 1 {
		return ErrInvalidConfig
	}
	if cfg.ResubmitCap < 0 {
		return ErrInvalidConfig
	}
	switch cfg.WaitPolicy {
	case WaitComplete, WaitFactor, WaitFixed, ResubmitIncomplete:
	default:
		return ErrUnknownWaitPolicy
	}
	switch cfg.Parallelism {
	case Serial, Threaded, Brokered:
	default:
		return ErrInvalidConfig
	}
	return nil
}
