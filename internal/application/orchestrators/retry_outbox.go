package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	outboxStore "percentuais/internal/adapters/storage/outbox"
	domain "percentuais/internal/domain/outbox"
)

// OutboxProcessor replays queued notifications whose first delivery
// failed. Every entry carries the original JSON-encoded send request,
// resent verbatim with exponential backoff until it lands or the
// attempt budget runs out.
type OutboxProcessor struct {
	store     outboxStore.Store
	sender    emailAdapter.Sender
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, sender emailAdapter.Sender) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		sender:    sender,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 10,
	}
}

// ProcessPending replays queued entries that are due.
// PRE: Context is valid
// POST: Due entries are attempted; failures stay queued for retry
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("list pending outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "kind", entry.Kind, "error", err.Error())
		}
	}

	return nil
}

// processEntry replays a single entry if its backoff window has passed.
func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry) error {
	if !entry.LastAttemptedAt.IsZero() {
		delay := entry.NextRetryDelay(p.baseDelay, p.maxDelay)
		if time.Since(entry.LastAttemptedAt) < delay {
			return nil // Not ready to retry yet
		}
	}

	entry.MarkAttempt()
	messageID, err := p.deliver(ctx, entry)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_delivery_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err.Error())
	} else {
		entry.MarkDelivered(messageID)
		slog.Info("outbox_delivered", "entry_id", entry.ID, "kind", entry.Kind, "message_id", messageID)
	}

	return p.store.Save(ctx, entry)
}

// deliver resends the entry's original send request.
func (p *OutboxProcessor) deliver(ctx context.Context, entry domain.Entry) (string, error) {
	var req emailAdapter.SendRequest
	if err := json.Unmarshal([]byte(entry.Payload), &req); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	res, err := p.sender.Send(ctx, req)
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// ProcessSingle manually replays a single entry (for operator retry).
// PRE: entryID is non-empty
// POST: Entry is attempted, status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}

	if entry.IsTerminal() {
		return fmt.Errorf("entry %s is in terminal state and cannot be retried", entryID)
	}

	entry.MarkAttempt()
	messageID, err := p.deliver(ctx, entry)
	if err != nil {
		entry.MarkFailed(err)
	} else {
		entry.MarkDelivered(messageID)
	}

	return p.store.Save(ctx, entry)
}

// AbandonEntry marks an entry as abandoned by an operator.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}

	entry.MarkAbandoned()
	return p.store.Save(ctx, entry)
}

// StartBackgroundWorker starts a goroutine that periodically replays
// pending outbox entries.
// PRE: stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed
func StartBackgroundWorker(processor *OutboxProcessor, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := processor.ProcessPending(ctx); err != nil {
					slog.Error("outbox_background_process_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
}
