package tasks

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"errors"
	"fmt"
)

// ErrDeserialize is returned by DecodeArgs/DeserializeTime when the base64
// wrapper or the underlying gob stream is invalid.
var ErrDeserialize = errors.New("tasks: deserialize failed")

// EncodeArgs base64-wraps an already-JSON-encoded argument blob, so the
// result is safe to embed in the TASK envelope's args/kwargs string
// fields. A TASK names a registered handler (TaskArgs.Function, carried
// as a plain string — an identifier, not a binary blob, needs no
// wrapping) rather than an arbitrary pickled closure; only its JSON
// arguments travel through this encoding.
func EncodeArgs(jsonArgs []byte) string {
	return base64.StdEncoding.EncodeToString(jsonArgs)
}

// DecodeArgs is the inverse of EncodeArgs.
func DecodeArgs(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeserialize, err)
	}
	return raw, nil
}

// SerializeTime base64-wraps a gob-encoded time, used for the TASK
// envelope's time_to_start field.
func SerializeTime(unixNano int64) string {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(unixNano)
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DeserializeTime is the inverse of SerializeTime.
func DeserializeTime(s string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrDeserialize, err)
	}
	var unixNano int64
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&unixNano); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrDeserialize, err)
	}
	return unixNano, nil
}
