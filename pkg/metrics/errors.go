package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrNotGatherer = errors.New("metrics registry is not a gatherer")
)
