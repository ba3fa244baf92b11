// Package events connects the similarity index to Kafka: document-change
// events keep the index current across processes, and a completion event is
// published after every indexing run.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

// Op is the kind of change a DocumentChange describes.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// DocumentChange is published by whatever writes to the vault. Body may be
// omitted, in which case the document is read from the vault.
type DocumentChange struct {
	ID         string    `json:"id"`
	Op         Op        `json:"op"`
	Body       string    `json:"body,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// IndexComplete announces a finished Initialize or ForceReindex.
type IndexComplete struct {
	RunID       string    `json:"runId"`
	Documents   int       `json:"documents"`
	DurationMS  int64     `json:"durationMs"`
	FromCache   bool      `json:"fromCache"`
	CompletedAt time.Time `json:"completedAt"`
}

// Indexer is the part of the similarity index the consumer drives.
type Indexer interface {
	ProcessDocument(ctx context.Context, id, text string) error
	RemoveDocument(id string) bool
}

// HandleDocumentChange returns a MessageHandler applying change events to
// ix. Malformed events and documents that can never be indexed are logged and
// acknowledged; other failures are returned so the message is not committed.
func HandleDocumentChange(ix Indexer, v vault.Vault, m *metrics.Metrics, logger *slog.Logger) kafka.MessageHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "change-consumer")
	observe := func(op Op, status string) {
		if m != nil {
			m.EventsConsumedTotal.WithLabelValues(string(op), status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentChange](value)
		if err != nil {
			logger.Error("failed to decode document change", "error", err, "key", string(key))
			observe("unknown", "invalid")
			return nil
		}
		if event.ID == "" {
			logger.Error("document change without id", "key", string(key))
			observe(event.Op, "invalid")
			return nil
		}

		switch event.Op {
		case OpDelete:
			removed := ix.RemoveDocument(event.ID)
			logger.Info("document removed", "id", event.ID, "present", removed)
			observe(event.Op, "ok")
			return nil
		case OpUpsert, "":
			body := event.Body
			if body == "" && v != nil {
				body, err = v.Read(ctx, event.ID)
				if errors.Is(err, apperrors.ErrDocumentNotFound) {
					logger.Warn("changed document no longer exists", "id", event.ID)
					ix.RemoveDocument(event.ID)
					observe(OpUpsert, "missing")
					return nil
				}
				if err != nil {
					observe(OpUpsert, "error")
					return fmt.Errorf("reading %s: %w", event.ID, err)
				}
			}
			if err := ix.ProcessDocument(ctx, event.ID, body); err != nil {
				if errors.Is(err, apperrors.ErrDocumentTooLarge) || errors.Is(err, apperrors.ErrInvalidInput) {
					observe(OpUpsert, "skipped")
					return nil
				}
				observe(OpUpsert, "error")
				return fmt.Errorf("indexing %s: %w", event.ID, err)
			}
			logger.Debug("document indexed", "id", event.ID)
			observe(OpUpsert, "ok")
			return nil
		default:
			logger.Error("unknown document change op", "id", event.ID, "op", event.Op)
			observe(event.Op, "invalid")
			return nil
		}
	}
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier publishes IndexComplete events. A nil Notifier is a no-op.
type Notifier struct {
	pub    Publisher
	logger *slog.Logger
}

func NewNotifier(pub Publisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{pub: pub, logger: logger.With("component", "index-notifier")}
}

// IndexComplete publishes ev keyed by its run id. Failures are logged and
// returned; they never affect the index.
func (n *Notifier) IndexComplete(ctx context.Context, ev IndexComplete) error {
	if n == nil || n.pub == nil {
		return nil
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = time.Now()
	}
	if err := n.pub.Publish(ctx, kafka.Event{Key: ev.RunID, Value: ev}); err != nil {
		n.logger.Warn("publishing index completion failed", "run", ev.RunID, "error", err)
		return err
	}
	return nil
}
