// Package id generates the two flavors of identifier the rest of the
// module needs: a time-sortable ULID for persisted records (internal/buildlog
// row keys) and a short, URL-safe id for ephemeral per-connection
// correlation (internal/gateway's observer log lines).
package id

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// ULID returns a new, lexically-sortable-by-time identifier. Returns "" on
// the (practically unreachable) entropy-read failure, matching the
// teacher's own fail-soft convention for id generation.
func ULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	ms := ulid.Timestamp(time.Now())
	val, err := ulid.New(ms, entropy)
	if err != nil {
		return ""
	}
	return val.String()
}

// Short returns a short, non-sortable identifier suitable for tagging a
// single SSE connection's log lines. Returns "" on generator failure.
func Short() string {
	val, err := shortid.Generate()
	if err != nil {
		return ""
	}
	return val
}
