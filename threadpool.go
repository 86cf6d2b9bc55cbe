package gevabroker

import "github.com/gemfony-scientific/gevabroker/pool"

// slot is the opaque value exchanged through a pool.Pool used purely as a
// concurrency gate; it carries no state of its own.
type slot struct{}

// newSlotPool returns a pool.Pool sized by size: a fixed pool of size slots
// when size > 0 (Get blocks once all are checked out), or a dynamic,
// effectively unbounded pool when size == 0.
func newSlotPool(size uint) pool.Pool {
	newFn := func() interface{} { return slot{} }
	if size == 0 {
		return pool.NewDynamic(newFn)
	}
	return pool.NewFixed(size, newFn)
}
