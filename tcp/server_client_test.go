package tcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gemfony-scientific/gevabroker"
	"github.com/gemfony-scientific/gevabroker/codec"
	"github.com/gemfony-scientific/gevabroker/examples/parabola"
	"github.com/gemfony-scientific/gevabroker/tcp"
)

func newTestRegistry() *codec.Registry {
	r := codec.NewRegistry()
	r.Register(parabola.Kind, func() codec.Registerable { return parabola.New(nil) })
	return r
}

// waitForAddr polls until the Server has bound its listener, the way a
// real deployment would discover an OS-assigned port (TCPPort: 0).
func waitForAddr(t *testing.T, s *tcp.Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != nil {
			return addr.String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never bound a listener")
	return ""
}

// TestServerClient_Loopback_RoundTrip exercises the full wire path: a
// BROKERED Executor pushes items into the Broker, the TCP Server serves
// them to a real TCP Client over loopback, the Client evaluates them
// locally, and the results reconcile back into the Executor's original
// batch — spec.md §8's S3/S7-style end-to-end property, over an actual
// socket instead of the in-process Consumer.
func TestServerClient_Loopback_RoundTrip(t *testing.T) {
	cfg := gevabroker.DefaultConfig()
	cfg.Parallelism = gevabroker.Brokered
	cfg.WaitPolicy = gevabroker.WaitComplete
	cfg.BrokerPortCapacity = 16
	cfg.TCPPort = 0
	cfg.TCPThreads = 2
	cfg.TCPBatchHint = 1
	cfg.TCPGetDataTimeout = 20 * time.Millisecond
	cfg.ClientReconnectMax = 5
	cfg.ClientBackoffBase = 20 * time.Millisecond
	cfg.ClientBackoffCap = 100 * time.Millisecond

	registry := newTestRegistry()
	broker := gevabroker.NewBroker(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := tcp.NewServer(cfg, broker, registry, codec.FormatBinary)
	broker.EnrollConsumer(ctx, server)

	addr := waitForAddr(t, server)

	client := tcp.NewClient(cfg, addr, registry, codec.FormatBinary)
	clientDone := make(chan int, 1)
	go func() { clientDone <- client.Run(ctx) }()

	exec, err := gevabroker.NewExecutor(cfg, broker)
	require.NoError(t, err)
	defer exec.Close()

	const n = 5
	batch := make([]gevabroker.WorkItem, n)
	for i := range batch {
		batch[i] = parabola.New([]float64{float64(i), float64(i + 1)})
	}

	submitCtx, submitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer submitCancel()
	require.NoError(t, exec.Submit(submitCtx, batch))

	for i, item := range batch {
		ind := item.(*parabola.Individual)
		require.Equal(t, gevabroker.StatusProcessed, ind.Status(), "item %d: %s", i, ind.ErrorText())
		want := float64(i)*float64(i) + float64(i+1)*float64(i+1)
		require.InDelta(t, want, ind.Results()[0].Raw, 1e-9)
	}

	cancel()
	select {
	case code := <-clientDone:
		require.Equal(t, tcp.ExitClean, code)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not exit after cancellation")
	}
}
