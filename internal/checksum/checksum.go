// Package checksum provides deterministic hashing and canonical JSON
// encoding used by every durable artifact the exporter writes (queue
// snapshots, manifest entries, journal records).
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/reconquest/karma-go"
)

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Canonical re-encodes v as JSON with map keys sorted and no
// indentation, so that semantically identical values always produce
// byte-identical output regardless of struct field order or map
// iteration order.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, karma.Format(err, "unable to marshal value for canonicalization")
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, karma.Format(err, "unable to unmarshal for canonicalization")
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch value := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, value[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []interface{}:
		buf.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}

	return nil
}

// OfValue returns the SHA-256 hex digest of v's canonical JSON
// encoding.
func OfValue(v interface{}) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}

	return SHA256Hex(canonical), nil
}

// OfContent returns the content hash used for ManifestEntry.Hash.
func OfContent(content []byte) string {
	return SHA256Hex(content)
}
