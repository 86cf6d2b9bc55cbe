// Command gevaserver runs the process-wide Broker plus whichever Consumers
// are enabled on the command line (in-process thread pool, TCP server, or
// both), per spec.md §6's configuration surface and §9's exit code table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/gemfony-scientific/gevabroker"
	"github.com/gemfony-scientific/gevabroker/codec"
	"github.com/gemfony-scientific/gevabroker/examples/parabola"
	"github.com/gemfony-scientific/gevabroker/tcp"
)

// Exit codes, per spec.md §6: 0 clean shutdown, 1 configuration error,
// 3 unrecoverable protocol error (2, reconnect cap exceeded, is a
// client-only exit code — see cmd/gevaclient).
const (
	exitClean        = 0
	exitConfigError  = 1
	exitProtocolFail = 3
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := &cli.App{
		Name:  "gevaserver",
		Usage: "run the broker and its consumers",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "log-json", Usage: "emit production (JSON) logs instead of development console logs"},
			&cli.StringFlag{Name: "consumer", Value: "both", Usage: "which consumers to run: inprocess, tcp, or both"},
			&cli.IntFlag{Name: "tcp-port", Value: 10000, Usage: "TCP consumer listen port"},
			&cli.UintFlag{Name: "tcp-threads", Value: 4, Usage: "TCP consumer session concurrency"},
			&cli.StringFlag{Name: "format", Value: "binary", Usage: "wire format: text, xml, or binary"},
			&cli.UintFlag{Name: "thread-pool-size", Value: 0, Usage: "in-process consumer worker count (0 = dynamic)"},
			&cli.UintFlag{Name: "broker-port-capacity", Value: 256, Usage: "per-BufferPort queue capacity"},
			&cli.DurationFlag{Name: "shutdown-grace", Value: 5 * time.Second, Usage: "drain grace period on SIGTERM/SIGINT"},
		},
		Action: func(c *cli.Context) error {
			return serve(c)
		},
	}

	if err := app.Run(args); err != nil {
		if ce, ok := err.(*configError); ok {
			fmt.Fprintln(os.Stderr, ce.Error())
			return exitConfigError
		}
		fmt.Fprintln(os.Stderr, err)
		return exitProtocolFail
	}
	return exitClean
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func serve(c *cli.Context) error {
	format, err := codec.ParseFormat(c.String("format"))
	if err != nil {
		return &configError{err}
	}

	cfg := gevabroker.DefaultConfig()
	cfg.TCPPort = c.Int("tcp-port")
	cfg.TCPThreads = c.Uint("tcp-threads")
	cfg.TCPFormat = c.String("format")
	cfg.ThreadPoolSize = c.Uint("thread-pool-size")
	cfg.BrokerPortCapacity = c.Uint("broker-port-capacity")
	if err := gevabroker.ValidateConfig(&cfg); err != nil {
		return &configError{err}
	}

	logger, err := newLogger(c.Bool("log-json"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	registry := codec.NewRegistry()
	registry.Register(parabola.Kind, func() codec.Registerable { return parabola.New(nil) })

	broker := gevabroker.NewBroker(cfg, gevabroker.WithBrokerLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerKind := c.String("consumer")
	if consumerKind == "inprocess" || consumerKind == "both" {
		broker.EnrollConsumer(ctx, gevabroker.NewInProcessConsumer(cfg, broker,
			gevabroker.WithInProcessLogger(logger)))
	}
	if consumerKind == "tcp" || consumerKind == "both" {
		server := tcp.NewServer(cfg, broker, registry, format, tcp.WithServerLogger(logger))
		broker.EnrollConsumer(ctx, server)
	}

	logger.Info("gevaserver running", zap.String("consumer", consumerKind), zap.Int("tcpPort", cfg.TCPPort))

	<-ctx.Done()
	logger.Info("shutting down", zap.Duration("grace", c.Duration("shutdown-grace")))
	broker.Shutdown(context.Background(), c.Duration("shutdown-grace"))
	broker.Wait()
	return nil
}

func newLogger(json bool) (*zap.Logger, error) {
	if json {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
