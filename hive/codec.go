package hive

import "encoding/json"

// jsonCodec is a generic Codec backed by encoding/json, matching the wire
// format the checkpoint store already uses elsewhere.
type jsonCodec[V any] struct{ id string }

func (c jsonCodec[V]) ID() string { return c.id }

func (c jsonCodec[V]) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (c jsonCodec[V]) Decode(data []byte) (any, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
 return nil, err
	}
	return v, nil
}

// JSONCodec returns a Codec for value type V using encoding/json, suitable
// for any channel whose value is JSON-marshalable. id identifies the codec
// for schemaVersion hashing and cross-version compatibility checks.
func JSONCodec[V any](id string) Codec {
	return jsonCodec[V]{id: id}
}
