package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/gemfony-scientific/gevabroker"
	"github.com/gemfony-scientific/gevabroker/codec"
)

// Exit codes for a client process's main loop, per spec.md §6.
const (
	ExitClean              = 0
	ExitConfigError        = 1
	ExitReconnectExhausted = 2
	ExitProtocolError      = 3
)

// Client is the TCP Worker described in spec.md §4.2: it connects to a
// Server, negotiates the session's wire format via the CmdCompute
// handshake, requests work via CmdGetData, processes each item locally
// with gevabroker.WorkItem.Process, and returns it via CmdResult. On
// disconnect it reconnects with exponential backoff
// (github.com/cenkalti/backoff/v4) up to cfg.ClientReconnectMax attempts.
type Client struct {
	cfg      gevabroker.Config
	addr     string
	registry *codec.Registry
	// preferredFormat is sent as this client's proposal in the CmdCompute
	// handshake payload; the server is not obliged to honor it (spec.md
	// §4.5). The session always uses the format named in the server's
	// reply.
	preferredFormat codec.Format
	logger          *zap.Logger
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithClientLogger attaches a logger; nil keeps the no-op logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a Client that dials addr, proposing preferredFormat at
// handshake. The format actually used for the session is whatever the
// server's handshake reply names (see serveConnection).
func NewClient(cfg gevabroker.Config, addr string, registry *codec.Registry, preferredFormat codec.Format, opts ...ClientOption) *Client {
	c := &Client{cfg: cfg, addr: addr, registry: registry, preferredFormat: preferredFormat, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, handshakes, and serves work until ctx is cancelled (clean
// exit) or the reconnect cap is exceeded (ExitReconnectExhausted), or a
// protocol-level decode failure recurs (ExitProtocolError). It never
// returns while a connection is healthy and ctx is live.
func (c *Client) Run(ctx context.Context) int {
	if c.cfg.ClientReconnectMax < 0 {
		return ExitConfigError
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ClientBackoffBase
	bo.MaxInterval = c.cfg.ClientBackoffCap
	bo.MaxElapsedTime = 0 // bounded by ClientReconnectMax instead, not wall-clock

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ExitClean
		}

		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			attempts++
			if attempts > c.cfg.ClientReconnectMax {
				c.logger.Error("tcp client: reconnect cap exceeded", zap.Int("attempts", attempts))
				return ExitReconnectExhausted
			}
			wait := bo.NextBackOff()
			c.logger.Debug("tcp client: dial failed, backing off",
				zap.Error(err), zap.Duration("wait", wait))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ExitClean
			}
		}

		attempts = 0
		bo.Reset()

		code, fatal := c.serveConnection(ctx, conn)
		_ = conn.Close()
		if fatal {
			return code
		}
		if ctx.Err() != nil {
			return ExitClean
		}
		// Connection dropped mid-stream; any in-flight item is left for the
		// producer's wait policy to reclaim, per spec.md §4.2's
		// cancellation note. Loop back to reconnect.
	}
}

// serveConnection handshakes and runs the request/process/reply loop over
// one connection. fatal is true when the caller should stop entirely
// (protocol error) rather than reconnect.
func (c *Client) serveConnection(ctx context.Context, conn net.Conn) (code int, fatal bool) {
	format, err := c.handshake(conn)
	if err != nil {
		c.logger.Error("tcp client: handshake failed", zap.Error(err))
		return ExitProtocolError, true
	}

	batchHint := c.cfg.TCPBatchHint
	if batchHint <= 0 {
		batchHint = 1
	}

	protocolErrors := 0
	for {
		if ctx.Err() != nil {
			return ExitClean, false
		}

		if err := WriteFrame(conn, CmdGetData, EncodeBatchHint(batchHint)); err != nil {
			return ExitClean, false
		}

		got, err := c.drainOneRound(ctx, conn, format)
		if err != nil {
			protocolErrors++
			if protocolErrors > 2 {
				return ExitProtocolError, true
			}
			continue
		}
		protocolErrors = 0
		if !got {
			// NODATA: brief pause so an idle client doesn't spin the
			// Server with GETDATA requests.
			select {
			case <-time.After(c.cfg.TCPGetDataTimeout):
			case <-ctx.Done():
				return ExitClean, false
			}
		}
	}
}

// handshake performs the CmdCompute exchange: the client proposes its
// preferredFormat, and the server's reply names the format and protocol
// version actually in effect for the rest of the session, per spec.md
// §4.6 step 1 ("performs handshake to agree on serialization format").
func (c *Client) handshake(conn net.Conn) (codec.Format, error) {
	if err := WriteFrame(conn, CmdCompute, EncodeHandshake(byte(c.preferredFormat), HandshakeVersion)); err != nil {
		return 0, fmt.Errorf("tcp client: write handshake: %w", err)
	}
	cmd, body, err := ReadFrame(conn)
	if err != nil {
		return 0, fmt.Errorf("tcp client: read handshake reply: %w", err)
	}
	if cmd != CmdCompute {
		return 0, fmt.Errorf("tcp client: unexpected handshake reply command %s", cmd)
	}
	format, version, err := DecodeHandshake(body)
	if err != nil {
		return 0, err
	}
	if version != HandshakeVersion {
		return 0, fmt.Errorf("tcp client: unsupported handshake version %d", version)
	}
	return codec.Format(format), nil
}

// drainOneRound reads one reply frame to a GETDATA request: NODATA, or a
// single item frame, which it processes, returns as a RESULT frame, and
// waits to see ACKed. It handles at most one item per round. got reports
// whether an item was served.
func (c *Client) drainOneRound(ctx context.Context, conn net.Conn, format codec.Format) (got bool, err error) {
	for {
		cmd, body, rerr := ReadFrame(conn)
		if rerr != nil {
			return got, fmt.Errorf("tcp client: read: %w", rerr)
		}

		switch cmd {
		case CmdNoData:
			return got, nil
		case CmdGetData:
			got = true
			item, derr := c.registry.Decode(body, format)
			if derr != nil {
				return got, fmt.Errorf("tcp client: decode: %w", derr)
			}
			gevabroker.ProcessItem(ctx, item)
			reg := item.(codec.Registerable)
			payload, eerr := c.registry.Encode(reg, format)
			if eerr != nil {
				return got, fmt.Errorf("tcp client: encode result: %w", eerr)
			}
			if werr := WriteFrame(conn, CmdResult, payload); werr != nil {
				return got, werr
			}
			ackCmd, _, aerr := ReadFrame(conn)
			if aerr != nil {
				return got, fmt.Errorf("tcp client: read ack: %w", aerr)
			}
			if ackCmd != CmdAck {
				return got, fmt.Errorf("tcp client: server nacked result")
			}
			return got, nil
		default:
			return got, fmt.Errorf("tcp client: unexpected command %s", cmd)
		}
	}
}
