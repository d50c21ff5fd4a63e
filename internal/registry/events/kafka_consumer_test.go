package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeReader serves queued messages and then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	messages  chan kafka.Message
	committed []kafka.Message
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func eventMessage(t *testing.T, event Event) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.Key), Value: value}
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	reader := newFakeReader(
		eventMessage(t, Event{Type: DocumentNumbered, Key: "d1"}),
		kafka.Message{Value: []byte("not json")},
		eventMessage(t, Event{Type: ReportNumbered, Key: "r1"}),
		eventMessage(t, Event{Type: ReportDeleted, Key: "r2"}),
	)
	core, recorded := observer.New(zap.ErrorLevel)
	consumer := newConsumer(reader, true, zap.New(core))

	var (
		mu   sync.Mutex
		seen []EventType
	)
	consumer.RegisterHandler(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Type)
		if ev.Type == ReportDeleted {
			return errors.New("handler failed")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 10*time.Millisecond)
	cancel()
	consumer.Wait()
	consumer.Close()

	assert.Equal(t, []EventType{DocumentNumbered, ReportNumbered, ReportDeleted}, seen)
	assert.Equal(t, 2, reader.commits())
	assert.True(t, reader.closed)
	assert.Equal(t, 1, recorded.FilterMessage("Failed to parse event").Len())
	assert.Equal(t, 1, recorded.FilterMessage("Failed to handle event").Len())
}

func TestConsumer_WithoutGroupDoesNotCommit(t *testing.T) {
	reader := newFakeReader(eventMessage(t, Event{Type: YearLockChanged, Key: "2025"}))
	consumer := newConsumer(reader, false, zaptest.NewLogger(t))

	handled := make(chan Event, 1)
	consumer.RegisterHandler(func(_ context.Context, ev Event) error {
		handled <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)

	select {
	case ev := <-handled:
		assert.Equal(t, "2025", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("event was not handled")
	}
	cancel()
	consumer.Wait()

	assert.Zero(t, reader.commits())
}
