package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// MultiSink fans a log artifact out to every configured sink.
type MultiSink struct {
	sinks []interfaces.LogSink
	log   *slog.Logger
}

// NewMultiSink creates a sink that writes to all of the given sinks.
func NewMultiSink(sinks []interfaces.LogSink, logger *slog.Logger) *MultiSink {
	// If no logger is provided, create a default one
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiSink{
		sinks: sinks,
		log:   logger,
	}
}

// Put stores data in every sink. A failing sink does not stop the others;
// the returned error joins all individual failures.
func (m *MultiSink) Put(ctx context.Context, blobPath string, data []byte) error {
	start := time.Now()
	var errs []error

	for _, sink := range m.sinks {
		if err := sink.Put(ctx, blobPath, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			m.log.Debug("Failed to store to sink",
				slog.String("sink_name", sink.Name()),
				slog.String("blob", blobPath),
				"err", err)
			continue
		}
	}

	if len(errs) > 0 {
		m.log.Warn("Some sinks failed to store log artifact",
			slog.String("blob", blobPath),
			slog.Int("failed_sinks", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return errors.Join(errs...)
	}

	return nil
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Name returns the name of this sink.
func (m *MultiSink) Name() string {
	names := make([]string, 0, len(m.sinks))
	for _, sink := range m.sinks {
		names = append(names, sink.Name())
	}
	return "multi:[" + strings.Join(names, ",") + "]"
}
