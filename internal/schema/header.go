package schema

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Glue Schema Registry wire format:
//
//	byte 0     header version (3)
//	byte 1     compression (0 none, 5 zlib)
//	bytes 2-17 schema version id
//	bytes 18-  payload
const (
	HeaderVersion   byte = 3
	CompressionNone byte = 0
	CompressionZlib byte = 5
)

const (
	HeaderLength      = 18
	compressionOffset = 1
	schemaIDOffset    = 2

	// MaxInflatedBytes caps the size of a decompressed payload.
	MaxInflatedBytes = 10 << 20
)

// EncodeHeader prepends the registry header for versionID to an uncompressed payload.
func EncodeHeader(versionID uuid.UUID, payload []byte) []byte {
	out := make([]byte, 0, HeaderLength+len(payload))
	out = append(out, HeaderVersion, CompressionNone)
	out = append(out, versionID[:]...)

	return append(out, payload...)
}

// DecodeHeader splits a record into its schema version id and payload,
// inflating zlib-compressed payloads of at most MaxInflatedBytes.
func DecodeHeader(data []byte) (uuid.UUID, []byte, error) {
	if len(data) < HeaderLength {
		return uuid.Nil, nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidHeader, len(data), HeaderLength)
	}

	if data[0] != HeaderVersion {
		return uuid.Nil, nil, fmt.Errorf("%w: unsupported header version %d", ErrInvalidHeader, data[0])
	}

	versionID, err := uuid.FromBytes(data[schemaIDOffset:HeaderLength])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	payload := data[HeaderLength:]

	switch data[compressionOffset] {
	case CompressionNone:
		return versionID, payload, nil
	case CompressionZlib:
		reader, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}
		defer reader.Close()

		inflated, err := io.ReadAll(io.LimitReader(reader, MaxInflatedBytes+1))
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}

		if len(inflated) > MaxInflatedBytes {
			return uuid.Nil, nil, fmt.Errorf("%w: inflated payload exceeds %d bytes", ErrInvalidHeader, MaxInflatedBytes)
		}

		return versionID, inflated, nil
	default:
		return uuid.Nil, nil, fmt.Errorf("%w: unsupported compression %d", ErrInvalidHeader, data[compressionOffset])
	}
}
