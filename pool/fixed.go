package pool

type fixed struct {
	available chan interface{}
	all       chan interface{}
	buf       chan interface{}
	newFn     func() interface{}
}

// NewFixed returns a Pool that creates at most capacity slots via newFn and
// blocks Get once all of them are checked out, matching Config.ThreadPoolSize
// when it is non-zero.
func NewFixed(capacity uint, newFn func() interface{}) Pool {
	return &fixed{
		available: make(chan interface{}, capacity),
		all:       make(chan interface{}, capacity),
		buf:       make(chan interface{}, 1024),
		newFn:     newFn,
	}
}

func (p *fixed) Get() interface{} {
	select {
	case el := <-p.available:
		return el

	default:
	}

	// p.all holds one token per slot created so far; once it is full, Get
	// waits for a Put instead of creating another slot.
	select {
	case el := <-p.available:
		return el
	case p.all <- struct{}{}:
		return p.newFn()
	}
}

func (p *fixed) Put(el interface{}) {
	select {
	case p.available <- el:
	default:
	}
}
