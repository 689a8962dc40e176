// Package worker drains the suggestion log queue into the analytics sink.
package worker

import (
	"context"

	"github.com/okian/tutormarket/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDropHandler registers fn to be called with every entry the sink
// failed to store, after the failure has been logged.
func WithDropHandler(fn func(ctx context.Context, e Entry, err error)) Option {
	return func(w *InMemoryWorker) { w.onDrop = fn }
}
