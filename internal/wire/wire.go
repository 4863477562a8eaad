// Package wire implements the versioned, optionally-compressed envelope
// that rendezvous handshake messages are carried in: a version-tagged
// marshal/unmarshal pair with an explicit compression-algorithm byte.
package wire

import (
	"encoding/json"
	"fmt"
)

// Version tags the envelope's wire layout, not the payload's Go type.
type Version uint16

const CurrentVersion Version = 0

// CompressionAlgo names the byte recorded in every envelope regardless
// of whether compression is actually applied; per the open question
// this resolves to RLE as a placeholder (see DESIGN.md), with gzip/zstd
// left to an integrator without changing the envelope shape.
type CompressionAlgo byte

const (
	CompressionNone CompressionAlgo = iota
	CompressionRLE
)

// Envelope is the versioned wrapper every wire message travels in.
type Envelope struct {
	Version     Version
	Compression CompressionAlgo
	Payload     []byte
}

// Marshal encodes v as JSON, optionally RLE-compressing the result, and
// wraps it in an Envelope.
func Marshal(v interface{}, compress bool) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	algo := CompressionNone
	if compress {
		b = rleEncode(b)
		algo = CompressionRLE
	}
	return Envelope{Version: CurrentVersion, Compression: algo, Payload: b}, nil
}

// Unmarshal decodes an Envelope's payload into v, undoing compression
// per the envelope's recorded algorithm byte.
func Unmarshal(e Envelope, v interface{}) error {
	if e.Version != CurrentVersion {
		return fmt.Errorf("wire: unsupported envelope version %d", e.Version)
	}
	payload := e.Payload
	switch e.Compression {
	case CompressionNone:
	case CompressionRLE:
		payload = rleDecode(payload)
	default:
		return fmt.Errorf("wire: unknown compression algorithm %d", e.Compression)
	}
	return json.Unmarshal(payload, v)
}

// rleEncode is a byte-oriented run-length encoder: each run is emitted
// as (count byte, value byte), splitting runs longer than 255.
func rleEncode(in []byte) []byte {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, 0, len(in))
	i := 0
	for i < len(in) {
		run := 1
		for i+run < len(in) && in[i+run] == in[i] && run < 255 {
			run++
		}
		out = append(out, byte(run), in[i])
		i += run
	}
	return out
}

func rleDecode(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i+1 < len(in); i += 2 {
		count := int(in[i])
		val := in[i+1]
		for j := 0; j < count; j++ {
			out = append(out, val)
		}
	}
	return out
}
