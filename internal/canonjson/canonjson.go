// Package canonjson provides canonical JSON serialization and content
// hashing for derived-truth documents. All functions are pure and
// deterministic: mapping keys are sorted recursively, array order is
// preserved, and numbers are normalized through encoding/json. Two
// documents with the same canonical bytes are the same document.
package canonjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// maxDepth bounds recursion so cyclic or pathologically nested input fails
// loudly instead of looping.
const maxDepth = 200

// ErrTooDeep is returned when input nesting exceeds maxDepth.
var ErrTooDeep = errors.New("canonjson: document exceeds maximum nesting depth")

// Marshal serializes v to canonical JSON: object keys sorted recursively,
// array order preserved, no insignificant whitespace. Struct json tags are
// honored via an encoding/json round-trip, which also rejects cyclic values.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonjson: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("canonjson: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, decoded, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the hex SHA-256 of the canonical serialization of v.
func Digest(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// DigestExcluding returns the canonical digest of v with the named top-level
// fields removed first. Used to exclude volatile fields (computed_at,
// created_at) from immutability comparisons.
func DigestExcluding(v any, fields ...string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonjson: marshal: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		// Not an object: nothing to exclude.
		return Digest(v)
	}
	for _, f := range fields {
		delete(m, f)
	}
	return Digest(m)
}

// volatileFields are timestamp fields excluded from stable digests: reruns
// with identical inputs are logically identical regardless of when they ran.
var volatileFields = []string{"computed_at", "created_at", "updated_at"}

// StableDigest returns the canonical digest of v with volatile timestamp
// fields removed. For arrays the exclusion applies to each element. This is
// the comparison basis of the immutable-writer contract.
func StableDigest(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonjson: marshal: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("canonjson: decode: %w", err)
	}

	switch val := decoded.(type) {
	case map[string]any:
		stripVolatile(val)
	case []any:
		for _, elem := range val {
			if m, ok := elem.(map[string]any); ok {
				stripVolatile(m)
			}
		}
	}
	return Digest(decoded)
}

func stripVolatile(m map[string]any) {
	for _, f := range volatileFields {
		delete(m, f)
	}
}

// ShortDigest returns the first 32 hex characters of the canonical digest.
// Used for deterministic document ids where a full digest is unwieldy.
func ShortDigest(v any) (string, error) {
	d, err := Digest(v)
	if err != nil {
		return "", err
	}
	return d[:32], nil
}

func writeCanonical(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}

	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonjson: encode string: %w", err)
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonjson: encode key: %w", err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonjson: unsupported value of type %T", v)
	}
	return nil
}
