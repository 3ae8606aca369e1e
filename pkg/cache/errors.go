package cache

import "errors"

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = errors.New("cache miss")
