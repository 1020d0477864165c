// Package canonjson produces a deterministic JSON encoding: object keys
// sorted lexically at every nesting level, no insignificant whitespace.
// It backs every sha256 digest the kernel records (tool envelopes,
// approval keys, run records) so that replay produces byte-identical
// hashes.
package canonjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v into canonical JSON: it round-trips through
// encoding/json once to normalize types, then rewrites any object with
// lexically sorted keys.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
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
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(val.String())
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonjson: marshal scalar: %w", err)
		}
		buf.Write(b)
		return nil
	}
}

// SHA256Hex returns the hex-encoded sha256 of v's canonical encoding.
func SHA256Hex(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// DigestPrefixHex hashes the first n bytes of content. Used by the
// taint engine so identical tool content across runs produces
// identical span digests regardless of later truncation.
func DigestPrefixHex(content string, n int) string {
	b := []byte(content)
	if n < len(b) {
		b = b[:n]
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
