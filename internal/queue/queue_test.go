package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_PublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, Message{Type: TypeMarked, Body: []byte("att-1")}))

	select {
	case msg := <-messages:
		assert.Equal(t, TypeMarked, msg.Type)
		assert.Equal(t, "att-1", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemory_PublishRespectsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Publish(ctx, Message{Type: TypeMarked}))
	cancel()

	// Queue is full and nobody consumes; cancellation must unblock.
	err := q.Publish(ctx, Message{Type: TypeMarked})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: TypeMarked, Body: []byte("att-42")}
	got := deserialize(serialize(msg))
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, msg.Body, got.Body)
}

func TestDeserialize_BodyMayContainSeparator(t *testing.T) {
	got := deserialize(serialize(Message{Type: "t", Body: []byte("a|b|c")}))
	assert.Equal(t, "t", got.Type)
	assert.Equal(t, "a|b|c", string(got.Body))
}

func TestDeserialize_MissingType(t *testing.T) {
	got := deserialize("raw-body")
	assert.Empty(t, got.Type)
	assert.Equal(t, "raw-body", string(got.Body))
}
