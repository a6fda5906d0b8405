package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/reviewstore/services/reviews/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	payload := map[string]interface{}{"id": 1, "name": "Ana"}

	event := NewEvent(ctx, EventTypeCustomerCreated, payload)

	_, err := uuid.Parse(event.EventID)
	assert.NoError(t, err)
	assert.Equal(t, EventTypeCustomerCreated, event.EventType)
	assert.Equal(t, "1.0.0", event.EventVersion)
	assert.Equal(t, "corr-1", event.CorrelationID)

	_, err = time.Parse(time.RFC3339, event.Timestamp)
	assert.NoError(t, err)

	body, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"payload":{"id":1,"name":"Ana"}`)
}

func TestNewEventWithoutCorrelation(t *testing.T) {
	event := NewEvent(context.Background(), EventTypeReviewDeleted, nil)
	assert.Empty(t, event.CorrelationID)

	body, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "correlation_id")
}

func TestNopPublisher(t *testing.T) {
	var p NopPublisher
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.True(t, p.IsHealthy())
	assert.NoError(t, p.Close())
}

func TestPublisherHealthWithoutConnection(t *testing.T) {
	p := &Publisher{}
	assert.False(t, p.IsHealthy())
}

// fakeChannel numbers publishes like a confirm-mode channel and answers
// each one through respond
type fakeChannel struct {
	mu        sync.Mutex
	tag       uint64
	inFlight  int
	overlap   bool
	published []amqp.Publishing
	confirms  chan amqp.Confirmation
	respond   func(tag uint64) []amqp.Confirmation
}

func newFakeChannel(respond func(tag uint64) []amqp.Confirmation) *fakeChannel {
	return &fakeChannel{
		confirms: make(chan amqp.Confirmation, 64),
		respond:  respond,
	}
}

func ackAll(tag uint64) []amqp.Confirmation {
	return []amqp.Confirmation{{DeliveryTag: tag, Ack: true}}
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.tag++
	tag := f.tag
	f.published = append(f.published, msg)
	f.mu.Unlock()

	for _, c := range f.respond(tag) {
		f.confirms <- c
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func setupPublisher(t *testing.T, ch *fakeChannel) *Publisher {
	p := newPublisher(nil, ch, ch.confirms, logger.NewLogger("test", "error"))
	p.confirmTimeout = 50 * time.Millisecond
	return p
}

func TestPublishManyEventsOnOneListener(t *testing.T) {
	ch := newFakeChannel(ackAll)
	p := setupPublisher(t, ch)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Publish(ctx, NewEvent(ctx, EventTypeReviewCreated, nil)))
	}

	assert.Equal(t, 10, ch.publishCount())
	assert.Equal(t, "review.created", ch.published[0].Headers["event_type"])
}

func TestPublishRetriesAfterNack(t *testing.T) {
	ch := newFakeChannel(func(tag uint64) []amqp.Confirmation {
		return []amqp.Confirmation{{DeliveryTag: tag, Ack: tag > 1}}
	})
	p := setupPublisher(t, ch)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, NewEvent(ctx, EventTypeCustomerCreated, nil)))
	assert.Equal(t, 2, ch.publishCount())
}

func TestPublishSkipsLateConfirmation(t *testing.T) {
	// the first publish is never confirmed in time; its nack shows up late,
	// ahead of the ack for the retry
	ch := newFakeChannel(func(tag uint64) []amqp.Confirmation {
		if tag == 1 {
			return nil
		}
		return []amqp.Confirmation{
			{DeliveryTag: tag - 1, Ack: false},
			{DeliveryTag: tag, Ack: true},
		}
	})
	p := setupPublisher(t, ch)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, NewEvent(ctx, EventTypeItemCreated, nil)))
	assert.Equal(t, 2, ch.publishCount())
}

func TestPublishGivesUpAfterRetries(t *testing.T) {
	ch := newFakeChannel(func(uint64) []amqp.Confirmation { return nil })
	p := setupPublisher(t, ch)
	ctx := context.Background()

	err := p.Publish(ctx, NewEvent(ctx, EventTypeReviewDeleted, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmation timeout")
	assert.Equal(t, maxRetries, ch.publishCount())
}

func TestConcurrentPublishesAreSerialized(t *testing.T) {
	ch := newFakeChannel(ackAll)
	p := setupPublisher(t, ch)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Publish(ctx, NewEvent(ctx, EventTypeReviewCreated, nil))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 20, ch.publishCount())
	assert.False(t, ch.overlap)
}

func TestPublishStopsOnCanceledContext(t *testing.T) {
	ch := newFakeChannel(func(uint64) []amqp.Confirmation { return nil })
	p := setupPublisher(t, ch)
	p.confirmTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Publish(ctx, NewEvent(ctx, EventTypeReviewCreated, nil))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, ch.publishCount())
}
