// Package tcp implements the networked Consumer variant described in
// spec.md §4.2: a TCP server Consumer that serves Broker.GetRaw/PutProcessed
// over the wire, and a TCP client Worker that connects to it, pulls work,
// and returns results. Framing is grounded on the length-prefixed
// ReadFrame/WriteFrame convention in
// other_examples/9cc77fcf_narinder-kaur-message-queue__internal-broker-broker.go.go,
// generalized from an unframed producer/consumer byte stream to an
// explicit command byte plus payload.
package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Command is the one-byte frame tag identifying a message's role in the
// session state machine defined in session.go.
type Command byte

const (
	// CmdGetData is sent by the client to request up to a batch-hint count
	// of work items; body is a 4-byte big-endian requested batch size. The
	// server's reply to a GETDATA request reuses this same tag, with the
	// body carrying one codec-encoded WorkItem, per spec.md §4.5's table
	// ("GETDATA -> serialized WorkItem, or NODATA").
	CmdGetData Command = iota + 1
	// CmdNoData is the server's reply when no raw item became available
	// within consumer.tcp.get_data_timeout.
	CmdNoData
	// CmdCompute is the handshake command: the client sends it on connect
	// (body: EncodeHandshake of its preferred format/version) and the
	// server replies with the same tag, body = EncodeHandshake of the
	// format and protocol version it will actually use for the session,
	// per spec.md §4.5/§4.6 ("COMPUTE <handshake_payload> -> server's
	// current serialization format and version").
	CmdCompute
	// CmdResult carries one codec-encoded, processed WorkItem from client
	// back to the server.
	CmdResult
	// CmdAck acknowledges a CmdResult was decoded and delivered.
	CmdAck
	// CmdNack reports a decode or protocol error; body is a human-readable
	// reason.
	CmdNack
	// CmdPing is a keepalive probe (the handshake is CmdCompute).
	CmdPing
	// CmdPong is the server's reply to CmdPing.
	CmdPong
)

func (c Command) String() string {
	switch c {
	case CmdGetData:
		return "GETDATA"
	case CmdNoData:
		return "NODATA"
	case CmdCompute:
		return "COMPUTE"
	case CmdResult:
		return "RESULT"
	case CmdAck:
		return "ACK"
	case CmdNack:
		return "NACK"
	case CmdPing:
		return "PING"
	case CmdPong:
		return "PONG"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// maxFrameBody bounds a single frame's body to guard against a corrupt or
// hostile length prefix forcing an enormous allocation.
const maxFrameBody = 64 << 20 // 64 MiB

// WriteFrame writes a single [4-byte big-endian length][1-byte
// command][body] frame to w. The length covers the command byte and body.
func WriteFrame(w io.Writer, cmd Command, body []byte) error {
	total := 1 + len(body)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(total))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("tcp: write frame header: %w", err)
	}
	frame := make([]byte, total)
	frame[0] = byte(cmd)
	copy(frame[1:], body)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("tcp: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame from r, returning its command and body.
func ReadFrame(r io.Reader) (Command, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	total := binary.BigEndian.Uint32(header)
	if total == 0 {
		return 0, nil, fmt.Errorf("tcp: empty frame")
	}
	if total > maxFrameBody {
		return 0, nil, fmt.Errorf("tcp: frame body too large: %d bytes", total)
	}
	frame := make([]byte, total)
	if _, err := io.ReadFull(r, frame); err != nil {
		return 0, nil, fmt.Errorf("tcp: read frame body: %w", err)
	}
	return Command(frame[0]), frame[1:], nil
}

// EncodeBatchHint encodes a requested GETDATA batch size as a CmdGetData
// body.
func EncodeBatchHint(n int) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(n))
	return body
}

// DecodeBatchHint decodes a CmdGetData body into a requested batch size,
// defaulting to 1 if body is malformed.
func DecodeBatchHint(body []byte) int {
	if len(body) != 4 {
		return 1
	}
	return int(binary.BigEndian.Uint32(body))
}

// HandshakeVersion is the wire protocol version exchanged during the
// CmdCompute handshake. It is independent of the binary codec format's own
// per-blob version byte (see codec/binary.go); this one versions the
// handshake payload itself.
const HandshakeVersion = 1

// EncodeHandshake encodes a CmdCompute handshake body: the sender's
// serialization format (a codec.Format value, as a byte) and the
// handshake's own protocol version.
func EncodeHandshake(format byte, version byte) []byte {
	return []byte{format, version}
}

// DecodeHandshake decodes a CmdCompute handshake body written by
// EncodeHandshake.
func DecodeHandshake(body []byte) (format byte, version byte, err error) {
	if len(body) != 2 {
		return 0, 0, fmt.Errorf("tcp: malformed handshake payload")
	}
	return body[0], body[1], nil
}
