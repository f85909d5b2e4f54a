// Package canonicalize implements json-c14n-v1: the canonical JSON
// encoding that every hash in this system is computed over.
//
// json-c14n-v1 is RFC 8785 (JSON Canonicalization Scheme) with one
// addition: NaN and +/-Inf are rejected outright rather than silently
// coerced, because a hash computed over a non-canonical number is not
// a hash anyone can reproduce.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gowebpki/jcs"
)

// ErrNonCanonicalJSON is returned when a value cannot be represented in
// json-c14n-v1 (NaN, +Inf, -Inf, or anything json.Marshal itself rejects).
var ErrNonCanonicalJSON = fmt.Errorf("non_canonical_json")

// JSON returns the json-c14n-v1 encoding of v.
//
// v is first marshaled with the standard encoder (so struct tags and
// custom MarshalJSON methods are honored), then passed through
// gowebpki/jcs to obtain RFC 8785 byte-for-byte canonical form: sorted
// object keys, no insignificant whitespace, literal UTF-8.
func JSON(v interface{}) ([]byte, error) {
	if err := rejectNonFinite(v); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", ErrNonCanonicalJSON, err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonicalJSON, err)
	}
	return canonical, nil
}

// rejectNonFinite walks v for float64 NaN/Inf values before they ever
// reach the encoder. json.Marshal already refuses these, but we check
// explicitly so the error is always ErrNonCanonicalJSON regardless of
// how v arrived (struct field, map, interface{}).
func rejectNonFinite(v interface{}) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ErrNonCanonicalJSON
		}
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonCanonicalJSON
		}
	case map[string]interface{}:
		for _, vv := range t {
			if err := rejectNonFinite(vv); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, vv := range t {
			if err := rejectNonFinite(vv); err != nil {
				return err
			}
		}
	}
	return nil
}

// Hash returns the lowercase hex SHA-256 digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashJSON canonicalizes v and returns the hex SHA-256 digest of the
// canonical bytes: hash_json(v) from §4.1.
func HashJSON(v interface{}) (string, error) {
	b, err := JSON(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// WithoutField re-marshals v (expected to be a map or a value that
// marshals to a JSON object) with the named top-level field removed,
// returning canonical bytes. This is how record_hash is computed: over
// the record with its own "record_hash" key absent.
func WithoutField(v interface{}, field string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: value is not a JSON object: %w", err)
	}
	delete(generic, field)

	return JSON(generic)
}

// HashWithoutField computes compute_record_hash(r) from §4.1: the
// canonical-JSON SHA-256 of v with field removed.
func HashWithoutField(v interface{}, field string) (string, error) {
	b, err := WithoutField(v, field)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// Equal reports whether two values canonicalize to byte-identical
// encodings -- used by property tests asserting P1 (key-order
// independence) and by the loop controller's structural comparison.
func Equal(a, b interface{}) (bool, error) {
	ab, err := JSON(a)
	if err != nil {
		return false, err
	}
	bb, err := JSON(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
