package indexer

import (
	"errors"
	"fmt"
)

// ErrNoAdapters is returned when a run is requested but no adapter reports
// itself configured.
var ErrNoAdapters = errors.New("no adapters configured")

// AdapterError wraps a failure scoped to one source's phase. It aborts that
// adapter's remaining work but not the run.
type AdapterError struct {
	Source string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
