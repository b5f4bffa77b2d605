// Package fingerprint canonicalizes a flat "group.name=value" query
// parameter set into a stable, order-independent digest: equal parameter
// sets (in any presentation order) always produce an equal Fingerprint.
package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrUnknownGroup is returned when a query key's dotted prefix is not in
// the caller-supplied set of allowed groups.
var ErrUnknownGroup = errors.New("fingerprint: unknown parameter group")

// ErrMalformedKey is returned when a query key has no dotted group prefix,
// or no field name after it.
var ErrMalformedKey = errors.New("fingerprint: malformed parameter key")

// Fingerprint is a stable, collision-resistant digest of a canonicalized
// parameter set. It is comparable and usable directly as a cache key.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Canonical is a parameter set grouped by prefix with every leaf value
// coerced to its native Go type. encoding/json marshals map[string]T keys
// in sorted order, so json.Marshal on a Canonical is already a
// deterministic, order-independent encoding — no separate sort step is
// needed before hashing.
type Canonical map[string]map[string]any

// Encode returns the canonical JSON encoding of c.
func (c Canonical) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// Parse groups a flat "group.name" -> value query parameter map into a
// Canonical, coercing every value to bool, int64, float64, or string (in
// that preference order) and rejecting any key whose group is not in
// allowedGroups.
func Parse(query map[string]string, allowedGroups []string) (Canonical, error) {
	allowed := make(map[string]bool, len(allowedGroups))
	for _, g := range allowedGroups {
		allowed[g] = true
	}

	canonical := make(Canonical)
	for key, value := range query {
		group, name, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		if !allowed[group] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
		}
		if canonical[group] == nil {
			canonical[group] = make(map[string]any)
		}
		canonical[group][name] = coerce(value)
	}
	return canonical, nil
}

func splitKey(key string) (group, name string, err error) {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return key[:idx], key[idx+1:], nil
}

// coerce converts a raw query value to bool, int64, float64, or string, in
// that order of preference. The first form the token unambiguously parses
// as wins.
func coerce(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// Compute parses and digests query in one step.
func Compute(query map[string]string, allowedGroups []string) (Fingerprint, error) {
	canonical, err := Parse(query, allowedGroups)
	if err != nil {
		return 0, err
	}
	return Digest(canonical)
}

// Digest hashes the canonical encoding of c with xxhash. Two Canonical
// values with equal content (regardless of the insertion order of their
// underlying maps) produce an equal Fingerprint, because Encode's
// underlying json.Marshal always visits map keys in sorted order.
func Digest(c Canonical) (Fingerprint, error) {
	encoded, err := c.Encode()
	if err != nil {
		return 0, err
	}
	return Fingerprint(xxhash.Sum64(encoded)), nil
}
