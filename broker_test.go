package gevabroker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeItem is a minimal WorkItem for exercising the Broker and Executor
// without any codec or domain logic.
type fakeItem struct {
	id int

	processFn func(ctx context.Context, self *fakeItem) error

	status     Status
	courtierID CourtierID
	attempts   int
	errorText  string
	results    []Result
}

func newFakeItem(id int) *fakeItem {
	return &fakeItem{id: id, status: StatusDoProcess}
}

func (f *fakeItem) Process(ctx context.Context) error {
	if f.processFn != nil {
		return f.processFn(ctx, f)
	}
	f.results = []Result{{Raw: float64(f.id), Transformed: float64(f.id)}}
	return nil
}

func (f *fakeItem) Clone() WorkItem {
	return &fakeItem{id: f.id, processFn: f.processFn, status: StatusDoProcess}
}
func (f *fakeItem) Status() Status               { return f.status }
func (f *fakeItem) SetStatus(s Status)           { f.status = s }
func (f *fakeItem) CourtierID() CourtierID       { return f.courtierID }
func (f *fakeItem) SetCourtierID(c CourtierID)   { f.courtierID = c }
func (f *fakeItem) Attempts() int                { return f.attempts }
func (f *fakeItem) IncrementAttempts()           { f.attempts++ }
func (f *fakeItem) ErrorText() string            { return f.errorText }
func (f *fakeItem) SetErrorText(s string)        { f.errorText = s }
func (f *fakeItem) Results() []Result            { return f.results }
func (f *fakeItem) SetResults(r []Result)        { f.results = r }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BrokerPortCapacity = 16
	cfg.BrokerDispatchTimeout = 20 * time.Millisecond
	cfg.PushTimeout = 50 * time.Millisecond
	return cfg
}

func TestBroker_EnrollBufferPort_RequiresRunning(t *testing.T) {
	b := NewBroker(testConfig())
	require.Equal(t, Initializing, b.State())

	_, err := b.EnrollBufferPort(NewBufferPort(4))
	require.ErrorIs(t, err, ErrBrokerNotRunning)
}

func TestBroker_EnrollConsumer_TransitionsToRunning(t *testing.T) {
	b := NewBroker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.EnrollConsumer(ctx, consumerFunc(func(ctx context.Context) { <-ctx.Done() }))
	require.Equal(t, Running, b.State())

	cancel()
	b.Wait()
}

// consumerFunc adapts a plain function to the Consumer interface for tests.
type consumerFunc func(ctx context.Context)

func (f consumerFunc) Descriptor() ConsumerDescriptor { return ConsumerDescriptor{Name: "test"} }
func (f consumerFunc) Run(ctx context.Context)        { f(ctx) }

func TestBroker_RoundRobin_FairAcrossPorts(t *testing.T) {
	b := NewBroker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.EnrollConsumer(ctx, consumerFunc(func(ctx context.Context) { <-ctx.Done() }))

	const nPorts = 4
	const perPort = 10
	ports := make([]*BufferPort, nPorts)
	for i := range ports {
		ports[i] = NewBufferPort(perPort)
		_, err := b.EnrollBufferPort(ports[i])
		require.NoError(t, err)
		for j := 0; j < perPort; j++ {
			require.True(t, ports[i].PushRaw(newFakeItem(i*100+j), time.Second))
		}
	}

	counts := make([]int, nPorts)
	for total := 0; total < nPorts*perPort; total++ {
		item, ok := b.GetRaw(time.Second)
		require.True(t, ok)
		f := item.(*fakeItem)
		counts[f.id/100]++

		lo, hi := counts[0], counts[0]
		for _, c := range counts[1:] {
			lo, hi = min(lo, c), max(hi, c)
		}
		require.LessOrEqual(t, hi-lo, 1, "after %d calls port counts spread by more than 1: %v", total+1, counts)
	}

	for i, c := range counts {
		require.Equal(t, perPort, c, "port %d got %d items, want %d", i, c, perPort)
	}
}

func TestBroker_Shutdown_DrainsRemainingRawItems(t *testing.T) {
	b := NewBroker(testConfig())
	ctx := context.Background()

	port := NewBufferPort(4)
	token, err := func() (*PortToken, error) {
		// Enroll requires Running; get there via a throwaway consumer.
		subCtx, cancel := context.WithCancel(context.Background())
		b.EnrollConsumer(subCtx, consumerFunc(func(ctx context.Context) { <-ctx.Done() }))
		cancel()
		return b.EnrollBufferPort(port)
	}()
	require.NoError(t, err)
	defer token.Release()

	item := newFakeItem(1)
	require.True(t, port.PushRaw(item, time.Second))

	b.Shutdown(ctx, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, Stopped, b.State())

	got, ok := port.PopProcessed(0)
	require.True(t, ok)
	require.Equal(t, StatusErrorFlagged, got.Status())
	require.Contains(t, got.ErrorText(), "drained")
}

func TestBroker_PutProcessed_RoutesBySubmission(t *testing.T) {
	b := NewBroker(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.EnrollConsumer(ctx, consumerFunc(func(ctx context.Context) { <-ctx.Done() }))

	portA := NewBufferPort(4)
	portB := NewBufferPort(4)
	tokA, err := b.EnrollBufferPort(portA)
	require.NoError(t, err)
	defer tokA.Release()
	tokB, err := b.EnrollBufferPort(portB)
	require.NoError(t, err)
	defer tokB.Release()

	subA := b.NextSubmissionID()
	b.RegisterSubmission(subA, portA)
	defer b.UnregisterSubmission(subA)

	item := newFakeItem(42)
	item.SetCourtierID(CourtierID{SubmissionID: subA, Position: 0})
	b.PutProcessed(item)

	got, ok := portA.PopProcessed(time.Second)
	require.True(t, ok)
	require.Equal(t, 42, got.(*fakeItem).id)

	_, ok = portB.PopProcessed(50 * time.Millisecond)
	require.False(t, ok)
}

func TestBroker_PutProcessed_UnknownSubmissionDropped(t *testing.T) {
	b := NewBroker(testConfig())
	item := newFakeItem(1)
	item.SetCourtierID(CourtierID{SubmissionID: 999, Position: 0})
	// Must not panic or block.
	b.PutProcessed(item)
}

func TestInProcessConsumer_ProcessesAndReturns(t *testing.T) {
	cfg := testConfig()
	b := NewBroker(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	b.EnrollConsumer(ctx, NewInProcessConsumer(cfg, b))

	port := NewBufferPort(8)
	token, err := b.EnrollBufferPort(port)
	require.NoError(t, err)
	defer token.Release()

	const n = 20
	for i := 0; i < n; i++ {
		require.True(t, port.PushRaw(newFakeItem(i), time.Second))
	}

	var wg sync.WaitGroup
	results := make([]WorkItem, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			item, ok := port.PopProcessed(2 * time.Second)
			require.True(t, ok)
			results[i] = item
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Equal(t, StatusProcessed, r.Status())
	}

	cancel()
	b.Wait()
}

func TestProcessOne_PanicBecomesExceptFlagged(t *testing.T) {
	item := newFakeItem(1)
	item.processFn = func(ctx context.Context, self *fakeItem) error {
		panic("boom")
	}
	processOne(item, func() error { return item.Process(context.Background()) })
	require.Equal(t, StatusExceptFlagged, item.Status())
	require.Contains(t, item.ErrorText(), "panic")
}

func TestProcessOne_UserFlaggedError(t *testing.T) {
	item := newFakeItem(1)
	item.processFn = func(ctx context.Context, self *fakeItem) error {
		return UserFlagged(fmt.Errorf("bad input"))
	}
	processOne(item, func() error { return item.Process(context.Background()) })
	require.Equal(t, StatusErrorFlagged, item.Status())
}

func TestProcessOne_GenericErrorBecomesExceptFlagged(t *testing.T) {
	item := newFakeItem(1)
	item.processFn = func(ctx context.Context, self *fakeItem) error {
		return fmt.Errorf("explode")
	}
	processOne(item, func() error { return item.Process(context.Background()) })
	require.Equal(t, StatusExceptFlagged, item.Status())
}
