package rate

import "errors"

// ErrRedisUnavailable wraps Redis failures.
var ErrRedisUnavailable = errors.New("rate: redis unavailable")
