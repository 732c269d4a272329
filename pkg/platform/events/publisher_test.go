package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "issuance/pkg/domain"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/events/memory"
	"issuance/pkg/requestcontext"
)

func TestPublisher_DeliversToSink(t *testing.T) {
	sink := memory.NewSink()
	pub := events.NewPublisher(sink, events.WithFlushInterval(10*time.Millisecond))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	ctx = requestcontext.WithPrincipal(ctx, id.PrincipalID("ops"))

	pub.Emit(ctx, events.KindSettlementSynced, "TRADE-1", map[string]any{"amount": 500})
	require.NoError(t, pub.Close())

	got := sink.All()
	require.Len(t, got, 1)
	assert.Equal(t, events.KindSettlementSynced, got[0].Kind)
	assert.Equal(t, "TRADE-1", got[0].Key)
	assert.Equal(t, now, got[0].Timestamp)
	assert.Equal(t, "req-1", got[0].RequestID)
	assert.Equal(t, "ops", got[0].Principal)
	assert.Equal(t, events.CategorySettlement, got[0].Category())
}

func TestPublisher_CloseDrainsBuffer(t *testing.T) {
	sink := memory.NewSink()
	pub := events.NewPublisher(sink, events.WithBatchSize(3), events.WithFlushInterval(time.Hour))

	for range 10 {
		pub.Emit(context.Background(), events.KindUnitsIssued, "US0378331005", nil)
	}
	require.NoError(t, pub.Close())
	assert.Len(t, sink.All(), 10)
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Write(ctx context.Context, _ []events.Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestPublisher_EmitNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	pub := events.NewPublisher(sink, events.WithBufferSize(2), events.WithBatchSize(1))
	defer func() {
		sink.once.Do(func() { close(sink.release) })
		_ = pub.Close()
	}()

	done := make(chan struct{})
	go func() {
		for range 100 {
			pub.Emit(context.Background(), events.KindCommitmentRecorded, "k", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow sink")
	}
	assert.Positive(t, pub.Dropped())
}

type failingSink struct{}

func (failingSink) Write(context.Context, []events.Event) error {
	return errors.New("broker unavailable")
}

func TestPublisher_SinkFailureDoesNotPanic(t *testing.T) {
	pub := events.NewPublisher(failingSink{})
	pub.Emit(context.Background(), events.KindReconciliationDivergence, "TRADE-9", nil)
	assert.NoError(t, pub.Close())
}

func TestKindCategory(t *testing.T) {
	cases := map[events.Kind]events.Category{
		events.KindInvestorWhitelisted:      events.CategoryCompliance,
		events.KindSettlementSynced:         events.CategorySettlement,
		events.KindCorporateActionProcessed: events.CategorySettlement,
		events.KindExternalRequestIssued:    events.CategoryOperations,
		events.Kind("unknown"):              events.CategoryOperations,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Category(), "kind %s", kind)
	}
}
