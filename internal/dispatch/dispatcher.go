// Package dispatch forwards newly-ingested item ids to the downstream
// processing queue, with dead-letter routing on terminal send failure.
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/petlife-ingest/pet-crawler/internal/metrics"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
	"github.com/petlife-ingest/pet-crawler/internal/retry"
)

// Config names the downstream topics.
type Config struct {
	PendingTopic string
	DLQTopic     string
}

// Dispatcher sends one QueueMessage per pending item id. Sends are retried
// with the storage retry policy; a message that exhausts its retries is
// routed to the DLQ instead of aborting the batch.
type Dispatcher struct {
	publisher pet.Publisher
	clock     pet.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Dispatcher.
func New(publisher pet.Publisher, clock pet.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Dispatcher{
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// EnqueuePending publishes one message per pending id and returns the number
// sent plus the error strings for ids that could not be dispatched. A failed
// id is dead-lettered and does not stop the rest of the batch.
func (d *Dispatcher) EnqueuePending(ctx context.Context, batchID string, petType pet.Type, source string, pendingIDs []string) (int, []string) {
	sent := 0
	var errs []string

	for _, id := range pendingIDs {
		msg := pet.QueueMessage{
			BatchID:       batchID,
			PetID:         id,
			PetType:       petType,
			ExpectedTotal: len(pendingIDs),
			Source:        source,
			Timestamp:     d.clock.Now(),
		}

		err := retry.Do(ctx, retry.StorageConfig(), func(ctx context.Context) error {
			if _, pubErr := d.publisher.Publish(ctx, d.cfg.PendingTopic, msg); pubErr != nil {
				return &pet.QueueError{Err: pubErr}
			}
			return nil
		})
		if err == nil {
			sent++
			metrics.ObserveDispatch(d.cfg.PendingTopic, "sent")
			continue
		}
		metrics.ObserveDispatch(d.cfg.PendingTopic, "error")

		d.logger.Warn("dispatch failed, routing to dead letter queue",
			zap.String("pet_id", id),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		if dlqErr := d.deadLetter(ctx, msg, err); dlqErr != nil {
			errs = append(errs, fmt.Sprintf("dispatch %s: %v (dead letter failed: %v)", id, err, dlqErr))
			continue
		}
		errs = append(errs, fmt.Sprintf("dispatch %s: %v", id, err))
	}

	return sent, errs
}

func (d *Dispatcher) deadLetter(ctx context.Context, msg pet.QueueMessage, cause error) error {
	dead := pet.DeadLetter{
		QueueMessage: msg,
		Error:        cause.Error(),
		FailedAt:     d.clock.Now(),
	}
	if _, err := d.publisher.Publish(ctx, d.cfg.DLQTopic, dead); err != nil {
		metrics.ObserveDispatch(d.cfg.DLQTopic, "error")
		return err
	}
	metrics.ObserveDispatch(d.cfg.DLQTopic, "dead_lettered")
	return nil
}
