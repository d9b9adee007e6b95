package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
	queuemem "github.com/petlife-ingest/pet-crawler/internal/queue/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testConfig() Config {
	return Config{PendingTopic: "pets-pending", DLQTopic: "pets-dlq"}
}

func TestEnqueuePending_SendsOneMessagePerID(t *testing.T) {
	t.Parallel()

	pub := queuemem.New()
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	d := New(pub, clock, testConfig(), nil)

	ids := []string{"petlife_1", "petlife_2", "petlife_3"}
	sent, errs := d.EnqueuePending(context.Background(), "batch-1", pet.TypeDog, "petlife", ids)
	require.Equal(t, 3, sent)
	require.Empty(t, errs)

	msgs := pub.TopicMessages("pets-pending")
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		qm, ok := m.Payload.(pet.QueueMessage)
		require.True(t, ok)
		require.Equal(t, "batch-1", qm.BatchID)
		require.Equal(t, ids[i], qm.PetID)
		require.Equal(t, pet.TypeDog, qm.PetType)
		require.Equal(t, 3, qm.ExpectedTotal)
		require.Equal(t, "petlife", qm.Source)
		require.Equal(t, clock.now, qm.Timestamp)
		require.Zero(t, qm.RetryCount)
	}
	require.Empty(t, pub.TopicMessages("pets-dlq"))
}

func TestEnqueuePending_EmptyBatch(t *testing.T) {
	t.Parallel()

	pub := queuemem.New()
	d := New(pub, fixedClock{now: time.Now()}, testConfig(), nil)

	sent, errs := d.EnqueuePending(context.Background(), "batch-1", pet.TypeCat, "petlife", nil)
	require.Zero(t, sent)
	require.Empty(t, errs)
	require.Empty(t, pub.Messages())
}

// flakyPublisher fails the pending topic a fixed number of times before
// recovering, to exercise the retry path.
type flakyPublisher struct {
	inner     *queuemem.Publisher
	remaining int
}

func (p *flakyPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "pets-pending" && p.remaining > 0 {
		p.remaining--
		return "", errors.New("connection is busy")
	}
	return p.inner.Publish(ctx, topic, payload)
}

func TestEnqueuePending_RetriesTransientSendFailure(t *testing.T) {
	t.Parallel()

	pub := &flakyPublisher{inner: queuemem.New(), remaining: 1}
	d := New(pub, fixedClock{now: time.Now()}, testConfig(), nil)

	sent, errs := d.EnqueuePending(context.Background(), "batch-1", pet.TypeDog, "petlife", []string{"petlife_1"})
	require.Equal(t, 1, sent)
	require.Empty(t, errs)
	require.Len(t, pub.inner.TopicMessages("pets-pending"), 1)
}

func TestEnqueuePending_DeadLettersOnExhaustion(t *testing.T) {
	t.Parallel()

	pub := queuemem.New()
	pub.FailTopics = map[string]error{"pets-pending": errors.New("resource is locked")}
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	d := New(pub, clock, testConfig(), nil)

	sent, errs := d.EnqueuePending(context.Background(), "batch-1", pet.TypeDog, "petlife", []string{"petlife_1", "petlife_2"})
	require.Zero(t, sent)
	require.Len(t, errs, 2)
	require.Contains(t, errs[0], "petlife_1")

	dead := pub.TopicMessages("pets-dlq")
	require.Len(t, dead, 2)
	dl, ok := dead[0].Payload.(pet.DeadLetter)
	require.True(t, ok)
	require.Equal(t, "petlife_1", dl.PetID)
	require.Contains(t, dl.Error, "locked")
	require.Equal(t, clock.now, dl.FailedAt)
}

func TestEnqueuePending_ReportsDLQFailure(t *testing.T) {
	t.Parallel()

	pub := queuemem.New()
	pub.FailTopics = map[string]error{
		"pets-pending": errors.New("resource is locked"),
		"pets-dlq":     errors.New("dlq unavailable"),
	}
	d := New(pub, fixedClock{now: time.Now()}, testConfig(), nil)

	sent, errs := d.EnqueuePending(context.Background(), "batch-1", pet.TypeDog, "petlife", []string{"petlife_1"})
	require.Zero(t, sent)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "dead letter failed")
}
