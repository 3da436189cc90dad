// Package canon implements the canonical JSON serialization and hashing
// discipline that every other package in this module relies on. Two values
// that are equal under JSON semantics, once composite map keys are
// normalized, must canonicalize to byte-identical output.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ErrNotFinite is returned when a float value is NaN or +/-Inf.
var ErrNotFinite = errors.New("canon: non-finite float")

// ErrUnsupportedType is returned for values canon does not know how to
// normalize (e.g. a map with a key type this package doesn't recognize).
var ErrUnsupportedType = errors.New("canon: unsupported type")

// TupleEntry is one key/value pair of a composite-key table, prior to
// canonicalization. Key is the tuple's components in order, e.g.
// []string{state, action} for a transition-table row.
type TupleEntry struct {
	Key   []string
	Value interface{}
}

// TupleMap represents a map whose natural key is a tuple of strings rather
// than a single string (transition tables keyed by (state,action), reward
// tables keyed by (state,action,state'), etc). It canonicalizes as
// {"__tuplekey_dict__": [[joined_key, value], ...]}, sorted by joined_key,
// with the key components joined by "|".
type TupleMap []TupleEntry

// Marshal produces the canonical byte encoding of v: UTF-8, object keys
// sorted lexicographically, no insignificant whitespace, no NaN/Inf, arrays
// in original order, composite-keyed maps normalized via TupleMap.
func Marshal(v interface{}) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return encode(norm)
}

// MarshalStruct marshals v with encoding/json (respecting its json tags)
// and then re-canonicalizes the resulting bytes. Use this for the tagged
// witness/bundle structs; only the emitted JSON participates in hashing,
// never the Go representation.
func MarshalStruct(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return MarshalJSON(raw)
}

// MarshalJSON re-canonicalizes an already-encoded JSON document: it decodes
// into a generic interface{} tree (so only ever produces map[string]interface{}
// for objects, matching how encoding/json decodes), then canonicalizes.
func MarshalJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return Marshal(v)
}

// Hash returns the lowercase hex SHA-256 digest of Marshal(v).
func Hash(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return hashHex(b), nil
}

// HashStruct returns the lowercase hex SHA-256 digest of MarshalStruct(v).
func HashStruct(v interface{}) (string, error) {
	b, err := MarshalStruct(v)
	if err != nil {
		return "", err
	}
	return hashHex(b), nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form
	// carries none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if tm, ok := v.(TupleMap); ok {
		return normalizeTupleMap(tm)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, ErrNotFinite
		}
		return f, nil
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			nv, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key kind %s (use canon.TupleMap for composite keys)", ErrUnsupportedType, rv.Type().Key().Kind())
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			nv, err := normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func normalizeTupleMap(tm TupleMap) (interface{}, error) {
	type pair struct {
		joined string
		value  interface{}
	}
	pairs := make([]pair, 0, len(tm))
	for _, e := range tm {
		nv, err := normalize(e.Value)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{joined: strings.Join(e.Key, "|"), value: nv})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].joined < pairs[j].joined })

	items := make([]interface{}, len(pairs))
	for i, p := range pairs {
		items[i] = []interface{}{p.joined, p.value}
	}
	return map[string]interface{}{"__tuplekey_dict__": items}, nil
}
