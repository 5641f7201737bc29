package websearch

import "errors"

// ErrSearch wraps failures talking to the search instance.
var ErrSearch = errors.New("web search failed")
