package upstream

import "errors"

// Sentinel errors of the upstream client. Checked with errors.Is.
// ErrSerialization is declared but not returned: the client reports an
// undecodable cached payload as ErrNoCachedData.
var (
	ErrUpstreamFailure = errors.New("upstream: network, 5xx, or timeout")
	ErrNoCachedData    = errors.New("upstream: no cached data available")
	ErrSerialization   = errors.New("upstream: cached payload could not be decoded")
)
