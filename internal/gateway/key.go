package gateway

import "github.com/go-arcade/cadflight/pkg/fingerprint"

// Key identifies the single live build the cache may hold at any instant.
// Submissions to different endpoints or different visualize assemblies are
// treated as different keys: only one build runs system-wide at a time,
// exactly as spec'd for the SingleflightCache's single live entry.
type Key struct {
	Endpoint string
	Assembly string
	Params   fingerprint.Fingerprint
}
