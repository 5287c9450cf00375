package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *countingObserver) ObserveTransition(resource, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[resource+"/"+to]++
}

func TestNew(t *testing.T) {
	id, actor, patient := uuid.New(), uuid.New(), uuid.New()
	e := New("appointment", "confirmed", id, actor, "confirmed", patient)

	assert.Equal(t, "appointment.confirmed", e.Type)
	assert.Equal(t, "appointment", e.Resource)
	assert.Equal(t, []uuid.UUID{patient}, e.Recipients)
	assert.WithinDuration(t, time.Now(), e.At, time.Second)
}

func TestInstrumented_CountsStatusEvents(t *testing.T) {
	obs := &countingObserver{}
	var got []Event
	pub := Instrumented(PublisherFunc(func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	}), obs)

	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, New("appointment", "accepted", uuid.New(), uuid.New(), "doctor_accepted")))
	require.NoError(t, pub.Publish(ctx, New("prescription", "deleted", uuid.New(), uuid.New(), "")))

	assert.Len(t, got, 2)
	assert.Equal(t, map[string]int{"appointment/doctor_accepted": 1}, obs.calls)
}

func TestFanout_DeliversToAllTargets(t *testing.T) {
	var a, b int
	failing := PublisherFunc(func(context.Context, Event) error { return errors.New("down") })
	pub := Fanout(
		PublisherFunc(func(context.Context, Event) error { a++; return nil }),
		failing,
		PublisherFunc(func(context.Context, Event) error { b++; return nil }),
	)

	err := pub.Publish(context.Background(), New("diagnostic", "accepted", uuid.New(), uuid.New(), "accepted"))
	require.Error(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b, "targets after a failure still receive the event")
}

func TestEmitter_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(PublisherFunc(func(context.Context, Event) error {
		return errors.New("hub closed")
	}), zerolog.New(&buf))

	em.Emit(context.Background(), New("diagnostic", "requested", uuid.New(), uuid.New(), "pending"))

	assert.Contains(t, buf.String(), "failed to publish workflow event")
	assert.Contains(t, buf.String(), "hub closed")
}

func TestEmitter_NilSafe(t *testing.T) {
	var em *Emitter
	em.Emit(context.Background(), Event{})

	NewEmitter(nil, zerolog.Nop()).Emit(context.Background(), Event{Type: "x"})
}

func TestRedisPublisherAndRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	sink := PublisherFunc(func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	require.NoError(t, Relay(ctx, client, "", sink, zerolog.Nop()))

	recipient := uuid.New()
	sent := New("appointment", "requested", uuid.New(), uuid.New(), "pending", recipient)
	require.NoError(t, NewRedisPublisher(client, "").Publish(ctx, sent))

	select {
	case e := <-received:
		assert.Equal(t, sent.Type, e.Type)
		assert.Equal(t, sent.ResourceID, e.ResourceID)
		assert.Equal(t, []uuid.UUID{recipient}, e.Recipients)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
