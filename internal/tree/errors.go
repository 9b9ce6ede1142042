package tree

import "errors"

// ErrDegenerateLabel is returned when a topic label normalizes to an empty key.
var ErrDegenerateLabel = errors.New("degenerate topic label")
