// Package consumer reads document events from Kafka and writes them to the
// lexical index and link tables.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

// Writer persists one document and returns its length in tokens.
type Writer interface {
	IndexDocument(ctx context.Context, doc document.Document) (int, error)
}

// Tracker receives an analytics event per indexed document.
type Tracker interface {
	Track(event interface{})
}

var errInvalidDocument = errors.New("invalid document")

// HandleMessage returns a Kafka MessageHandler that indexes each document
// event. Malformed events are logged and skipped; store failures are retried
// and then returned so the message is not committed. tracker and m may be nil.
func HandleMessage(w Writer, tracker Tracker, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	retry := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrStoreUnavailable)
		},
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		start := time.Now()
		doc, err := kafka.DecodeJSON[document.Document](value)
		if err == nil {
			err = validate(doc)
		}
		if err != nil {
			logger.Error("skipping document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		var length int
		err = resilience.Retry(ctx, "index document", retry, func() error {
			var ierr error
			length, ierr = w.IndexDocument(ctx, doc)
			return ierr
		})
		if err != nil {
			return fmt.Errorf("indexing document %d: %w", doc.ID, err)
		}

		if m != nil {
			m.DocsIndexedTotal.Inc()
		}
		latency := time.Since(start)
		if tracker != nil {
			tracker.Track(analytics.IndexEvent{
				Type:       analytics.EventIndexDoc,
				DocID:      doc.ID,
				TokenCount: length,
				LinkCount:  len(doc.Links),
				LatencyMs:  latency.Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
		}

		logger.Info("document indexed",
			"doc_id", doc.ID,
			"tokens", length,
			"links", len(doc.Links),
			"latency", latency,
		)
		return nil
	}
}

func validate(doc document.Document) error {
	if doc.ID <= 0 {
		return fmt.Errorf("%w: doc_id must be positive, got %d", errInvalidDocument, doc.ID)
	}
	if strings.TrimSpace(doc.URL) == "" {
		return fmt.Errorf("%w: document %d has no url", errInvalidDocument, doc.ID)
	}
	return nil
}
