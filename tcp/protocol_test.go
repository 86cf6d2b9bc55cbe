package tcp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CmdCompute, []byte("hello")))

	cmd, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdCompute, cmd)
	require.Equal(t, []byte("hello"), body)
}

func TestWriteReadFrame_EmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, CmdNoData, nil))

	cmd, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, CmdNoData, cmd)
	require.Empty(t, body)
}

func TestReadFrame_TruncatedHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 1})
	_, _, err := ReadFrame(buf)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrame_OversizedBodyRejected(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	header[0] = 0xFF
	header[1] = 0xFF
	header[2] = 0xFF
	header[3] = 0xFF
	buf.Write(header)
	_, _, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestBatchHint_RoundTrip(t *testing.T) {
	require.Equal(t, 5, DecodeBatchHint(EncodeBatchHint(5)))
	require.Equal(t, 1, DecodeBatchHint(nil))
}

func TestHandshake_RoundTrip(t *testing.T) {
	format, version, err := DecodeHandshake(EncodeHandshake(2, HandshakeVersion))
	require.NoError(t, err)
	require.Equal(t, byte(2), format)
	require.Equal(t, byte(HandshakeVersion), version)
}

func TestDecodeHandshake_MalformedRejected(t *testing.T) {
	_, _, err := DecodeHandshake([]byte{1})
	require.Error(t, err)
}

func TestSession_AllowsPing(t *testing.T) {
	s := newSession("127.0.0.1:1")
	require.True(t, s.allowsPing())

	s.state = StateServing
	require.False(t, s.allowsPing())

	s.state = StateIdle
	require.True(t, s.allowsPing())
}

func TestCommand_String(t *testing.T) {
	require.Equal(t, "GETDATA", CmdGetData.String())
	require.Equal(t, "PONG", CmdPong.String())
}
