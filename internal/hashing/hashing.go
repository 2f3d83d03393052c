// Package hashing computes deterministic content digests of experiment
// payloads. The digest is the anchor unit for the provenance ledger: the
// same logical payload must always hash to the same value regardless of
// how its maps were built, and any change to any value must change it.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// ErrSerialization indicates the payload cannot be rendered in canonical
// form (cyclic structure, unsupported value kind, non-finite number).
// It signals a caller bug and is never worth retrying.
var ErrSerialization = errors.New("payload cannot be canonically serialized")

// maxDepth bounds the canonicalization walk. Cyclic payloads exceed it
// instead of recursing forever.
const maxDepth = 200

// Digest returns the canonical SHA-256 digest of payload as a lowercase
// hex string prefixed with "0x". The payload is canonicalized first: map
// keys are sorted at every nesting level, array order is preserved,
// timestamps are rendered as RFC3339 UTC, and numbers use a fixed decimal
// form. Digest is a pure function and is safe for concurrent use.
func Digest(payload map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, payload, 0); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return "0x" + hex.EncodeToString(sum[:]), nil
}

func writeValue(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: nesting exceeds %d levels (cyclic payload?)", ErrSerialization, maxDepth)
	}

	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		return writeString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case float64:
		return writeFloat(buf, val)
	case float32:
		return writeFloat(buf, float64(val))
	case int, int8, int16, int32, int64:
		fmt.Fprintf(buf, "%d", val)
	case uint, uint8, uint16, uint32, uint64:
		fmt.Fprintf(buf, "%d", val)
	case time.Time:
		return writeString(buf, val.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		return writeMap(buf, val, depth)
	case []any:
		return writeSlice(buf, val, depth)
	case fmt.Stringer:
		return writeString(buf, val.String())
	default:
		return fmt.Errorf("%w: unsupported value type %T", ErrSerialization, v)
	}
	return nil
}

func writeMap(buf *bytes.Buffer, m map[string]any, depth int) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, m[k], depth+1); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeSlice(buf *bytes.Buffer, s []any, depth int) error {
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, v, depth+1); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// writeString renders s as a JSON string literal. encoding/json escaping
// is deterministic, which is all canonical form requires.
func writeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	buf.Write(b)
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number %v", ErrSerialization, f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
