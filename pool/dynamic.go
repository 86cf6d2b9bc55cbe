package pool

import "sync"

// NewDynamic is a dynamic-size pool of workers. It is a wrapper around
// sync.Pool, selected when Config.ThreadPoolSize is zero: Get never blocks,
// so concurrency is bounded only by however many WorkItems are in flight.
func NewDynamic(newFn func() interface{}) Pool {
	return &sync.Pool{New: newFn}
}
