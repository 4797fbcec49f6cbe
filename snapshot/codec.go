// Package snapshot persists calculator sessions: a compact codec, schema
// validation on the way back in, cache and database stores, and a debounced
// persister driven by trade mutation hooks.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ftfvalues/tradecalc/game/trade"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed snapshot.schema.json
var schemaSource string

const schemaURL = "snapshot.schema.json"

// maxDecoded bounds the decompressed size of one snapshot.
const maxDecoded = 1 << 20

var (
	schema  = jsonschema.MustCompileString(schemaURL, schemaSource)
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("snapshot: zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded), zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("snapshot: zstd decoder: %v", err))
	}
}

// Marshal renders snap as JSON.
func Marshal(snap *trade.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil", trade.ErrMalformedSnapshot)
	}
	return json.Marshal(snap)
}

// Unmarshal parses JSON produced by Marshal. The document is checked
// against the snapshot schema and then against the session bounds.
func Unmarshal(data []byte) (*trade.Snapshot, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", trade.ErrMalformedSnapshot, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", trade.ErrMalformedSnapshot, err)
	}
	snap := &trade.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", trade.ErrMalformedSnapshot, err)
	}
	if err := trade.ValidateSnapshot(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Encode renders snap as base64(zstd(JSON)), the form kept in the cache.
func Encode(snap *trade.Snapshot) (string, error) {
	raw, err := Marshal(snap)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encoder.EncodeAll(raw, nil)), nil
}

// Decode reverses Encode and validates the result.
func Decode(s string) (*trade.Snapshot, error) {
	compressed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", trade.ErrMalformedSnapshot, err)
	}
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", trade.ErrMalformedSnapshot, err)
	}
	return Unmarshal(raw)
}
