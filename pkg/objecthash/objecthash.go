// Package objecthash produces deterministic content fingerprints of
// JSON-like objects. Two objects with the same data hash identically
// regardless of map iteration order, which is what makes hash equality a
// safe "nothing changed" signal.
package objecthash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Hash returns the sha256 hex digest of the stable serialization of v.
func Hash(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := canonicalize(&buf, v); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize writes v as JSON with object keys sorted. Maps stay objects
// and slices stay arrays in the serialized form, so a map can never collide
// with a list spelling out the same keys and values.
func canonicalize(buf *bytes.Buffer, v interface{}) error {
	switch tv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return errors.WithStack(err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := canonicalize(buf, tv[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range tv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := canonicalize(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(tv.String())
		return nil
	case nil, bool, string, float64, int, int64:
		data, err := json.Marshal(tv)
		if err != nil {
			return errors.WithStack(err)
		}
		buf.Write(data)
		return nil
	default:
		// Anything else (structs, typed numbers) goes through a JSON
		// round-trip to land in the cases above.
		data, err := json.Marshal(tv)
		if err != nil {
			return errors.WithStack(err)
		}
		var generic interface{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil {
			return errors.WithStack(err)
		}
		return canonicalize(buf, generic)
	}
}
