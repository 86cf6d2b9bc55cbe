package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// binaryFormatVersion is the single supported version of the binary wire
// format, carried as the first byte of every binary-encoded WorkItem.
const binaryFormatVersion byte = 1

// binEnvelope is gob-friendly: gob requires exported fields, which envelope
// already has, so it is reused directly as the gob payload.
type binEnvelope = envelope

func encodeBinary(env envelope) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(binaryFormatVersion)
	if err := gob.NewEncoder(&buf).Encode(binEnvelope(env)); err != nil {
		return nil, fmt.Errorf("codec: encode binary: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBinary(data []byte) (envelope, error) {
	if len(data) == 0 {
		return envelope{}, fmt.Errorf("codec: decode binary: empty payload")
	}
	version := data[0]
	if version != binaryFormatVersion {
		return envelope{}, fmt.Errorf("codec: decode binary: unsupported version %d", version)
	}
	var env binEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("codec: decode binary: %w", err)
	}
	return envelope(env), nil
}
