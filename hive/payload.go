package hive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// payloadHash computes the payload hash of a channel value: SHA-256 hex
// of codec.encode(value) if a codec exists, else of a canonical JSON
// encoding, else the UTF-8 of "unhashable:"+valueTypeID.
func payloadHash(spec ChannelSpec, value any) string {
	if spec.Codec != nil {
 if encoded, err := spec.Codec.Encode(value); err == nil {
 sum := sha256.Sum256(encoded)
 return hex.EncodeToString(sum[:])
 }
	}
	if encoded, ok := canonicalJSON(value); ok {
 sum := sha256.Sum256(encoded)
 return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256([]byte("unhashable:" + spec.ValueTypeID()))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON encodes v with sorted object keys and without escaped
// forward slashes, matching 's canonical JSON rule. encoding/json
// already sorts map keys and this package never emits '<'/'>'/'&' that would
// trigger Go's HTML-escaping, but we disable it explicitly for clarity.
func canonicalJSON(v any) ([]byte, bool) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
 return nil, false
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, true
}
