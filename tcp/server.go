package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/gemfony-scientific/gevabroker"
	"github.com/gemfony-scientific/gevabroker/codec"
	"github.com/gemfony-scientific/gevabroker/metrics"
)

// Server is the networked Consumer described in spec.md §4.2: it listens
// for TCP client Workers, negotiates the session's wire format via the
// CmdCompute handshake, serves Broker.GetRaw over the wire as CmdGetData
// reply frames, and feeds returned CmdResult frames back to
// Broker.PutProcessed. It implements gevabroker.Consumer.
type Server struct {
	cfg      gevabroker.Config
	broker   *gevabroker.Broker
	registry *codec.Registry
	format   codec.Format

	logger  *zap.Logger
	metrics metrics.Provider

	sessions  metrics.UpDownCounter
	served    metrics.Counter
	listener  net.Listener
	listenerM sync.Mutex
}

// ServerOption configures a Server at construction.
type ServerOption func(*Server)

// WithServerLogger attaches a logger; nil keeps the no-op logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServerMetrics attaches a metrics.Provider; nil keeps the no-op
// provider.
func WithServerMetrics(p metrics.Provider) ServerOption {
	return func(s *Server) {
		if p != nil {
			s.metrics = p
		}
	}
}

// NewServer builds a TCP Server Consumer. format is announced to each
// client Worker in the COMPUTE handshake reply and used for the whole
// session; registry must know every Kind the clients send back.
func NewServer(cfg gevabroker.Config, broker *gevabroker.Broker, registry *codec.Registry, format codec.Format, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		broker:   broker,
		registry: registry,
		format:   format,
		logger:   zap.NewNop(),
		metrics:  metrics.NewNoopProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = s.metrics.UpDownCounter("tcp.server.sessions")
	s.served = s.metrics.Counter("tcp.server.items_served")
	return s
}

// Addr returns the listener's bound address, or nil if Run has not yet
// started listening.
func (s *Server) Addr() net.Addr {
	s.listenerM.Lock()
	defer s.listenerM.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Descriptor() gevabroker.ConsumerDescriptor {
	return gevabroker.ConsumerDescriptor{
		Name:               "tcp",
		CapacityRestricted: s.cfg.ConsumerCapacityRestricted,
		Parallelism:        s.cfg.ConsumerParallelism,
		Remote:             true,
	}
}

// Run listens on cfg.TCPPort and serves connections until ctx is cancelled,
// bounding concurrent sessions to cfg.TCPThreads (the equivalent of the
// original's ASIO io_context thread pool, per SPEC_FULL.md's domain-stack
// mapping). It joins every session goroutine before returning.
func (s *Server) Run(ctx context.Context) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmtAddr(s.cfg.TCPPort))
	if err != nil {
		s.logger.Error("tcp server: listen failed", zap.Error(err))
		return
	}
	s.listenerM.Lock()
	s.listener = ln
	s.listenerM.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	slots := make(chan struct{}, maxInt(int(s.cfg.TCPThreads), 1))
	var wg sync.WaitGroup

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Debug("tcp server: accept error", zap.Error(err))
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			continue
		}

		wg.Add(1)
		s.sessions.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			defer s.sessions.Add(-1)
			s.serve(ctx, conn)
		}()
	}

	wg.Wait()
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	sess := newSession(conn.RemoteAddr().String())
	s.logger.Debug("tcp server: session opened",
		zap.String("sessionID", sess.id.String()), zap.String("addr", sess.addr))
	defer func() {
		s.logger.Debug("tcp server: session closed", zap.String("sessionID", sess.id.String()))
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		cmd, body, err := ReadFrame(conn)
		if err != nil {
			sess.state = StateClosed
			return
		}

		switch cmd {
		case CmdCompute:
			// Handshake: body carries the client's preferred format, which
			// this server does not have to honor (spec.md §4.5: the reply
			// is "server's current serialization format and version", not
			// a negotiated one). Every session after this point is decoded
			// and encoded in s.format regardless of what the client asked
			// for.
			if sess.state == StateConnected {
				sess.state = StateHandshake
			}
			_ = WriteFrame(conn, CmdCompute, EncodeHandshake(byte(s.format), HandshakeVersion))
			sess.state = StateIdle

		case CmdPing:
			if !sess.allowsPing() {
				_ = WriteFrame(conn, CmdNack, []byte("ping not allowed mid-serve"))
				sess.state = StateClosed
				return
			}
			_ = WriteFrame(conn, CmdPong, nil)
			sess.state = StateIdle

		case CmdGetData:
			sess.state = StateServing
			s.handleGetData(conn, body)
			sess.state = StateIdle

		case CmdResult:
			item, err := s.registry.Decode(body, s.format)
			if err != nil {
				tagged := gevabroker.WrapDecodeError(err, gevabroker.CourtierID{}, gevabroker.ErrorKindException)
				s.logger.Warn("tcp server: result decode failed", zap.Error(tagged))
				_ = WriteFrame(conn, CmdNack, []byte(tagged.Error()))
				continue
			}
			s.broker.PutProcessed(item)
			_ = WriteFrame(conn, CmdAck, nil)

		default:
			_ = WriteFrame(conn, CmdNack, []byte("protocol error"))
		}
	}
}

func (s *Server) handleGetData(conn net.Conn, body []byte) {
	n := DecodeBatchHint(body)
	if n <= 0 || n > s.cfg.TCPBatchHint {
		n = s.cfg.TCPBatchHint
	}
	if n <= 0 {
		n = 1
	}

	sentAny := false
	for i := 0; i < n; i++ {
		item, ok := s.broker.GetRaw(s.cfg.TCPGetDataTimeout)
		if !ok {
			break
		}
		reg, ok := item.(codec.Registerable)
		if !ok {
			s.logger.Error("tcp server: raw item is not codec.Registerable, dropping")
			continue
		}
		payload, err := s.registry.Encode(reg, s.format)
		if err != nil {
			s.logger.Error("tcp server: encode failed, dropping", zap.Error(err))
			continue
		}
		if err := WriteFrame(conn, CmdGetData, payload); err != nil {
			return
		}
		sentAny = true
		s.served.Add(1)
	}
	if !sentAny {
		_ = WriteFrame(conn, CmdNoData, nil)
	}
}

func fmtAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
