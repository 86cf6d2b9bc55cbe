// Command gevaclient connects to a gevaserver TCP Consumer endpoint and
// serves as a Worker: it pulls WorkItems, evaluates them, and returns
// results, per spec.md §4.2 and §6's exit code table.
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

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	code := tcp.ExitClean
	app := &cli.App{
		Name:  "gevaclient",
		Usage: "connect to a gevaserver TCP consumer endpoint and evaluate work",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:10000", Usage: "server address"},
			&cli.StringFlag{Name: "format", Value: "binary", Usage: "wire format: text, xml, or binary"},
			&cli.IntFlag{Name: "batch-hint", Value: 1, Usage: "requested GETDATA batch size"},
			&cli.IntFlag{Name: "reconnect-max", Value: 10, Usage: "max reconnect attempts before giving up"},
			&cli.DurationFlag{Name: "backoff-base", Value: 100 * time.Millisecond},
			&cli.DurationFlag{Name: "backoff-cap", Value: 30 * time.Second},
			&cli.DurationFlag{Name: "get-data-timeout", Value: 200 * time.Millisecond},
			&cli.BoolFlag{Name: "log-json"},
		},
		Action: func(c *cli.Context) error {
			code = clientMain(c)
			return nil
		},
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return tcp.ExitConfigError
	}
	return code
}

func clientMain(c *cli.Context) int {
	format, err := codec.ParseFormat(c.String("format"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return tcp.ExitConfigError
	}

	cfg := gevabroker.DefaultConfig()
	cfg.TCPBatchHint = c.Int("batch-hint")
	cfg.ClientReconnectMax = c.Int("reconnect-max")
	cfg.ClientBackoffBase = c.Duration("backoff-base")
	cfg.ClientBackoffCap = c.Duration("backoff-cap")
	cfg.TCPGetDataTimeout = c.Duration("get-data-timeout")
	if err := gevabroker.ValidateConfig(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return tcp.ExitConfigError
	}

	var logger *zap.Logger
	if c.Bool("log-json") {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return tcp.ExitConfigError
	}
	defer logger.Sync() //nolint:errcheck

	registry := codec.NewRegistry()
	registry.Register(parabola.Kind, func() codec.Registerable { return parabola.New(nil) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := tcp.NewClient(cfg, c.String("addr"), registry, format, tcp.WithClientLogger(logger))
	return client.Run(ctx)
}
