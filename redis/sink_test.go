package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	outbox "github.com/velmie/txoutbox"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestSinkAppendsToStream(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	sink := NewSink(client, WithStreamPrefix("outbox:"))

	ch, err := sink.Resolve(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, ch.Send(ctx, outbox.Envelope{
		Key:     "o-1",
		Payload: []byte(`{"id":"o-1"}`),
		Headers: map[string]string{outbox.HeaderMessageID: "id-1"},
	}))

	entries, err := client.XRange(ctx, "outbox:orders", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "o-1", entries[0].Values[FieldKey])
	require.Equal(t, `{"id":"o-1"}`, entries[0].Values[FieldPayload])
	require.Equal(t, "id-1", entries[0].Values[outbox.HeaderMessageID])
}

func TestSinkTrimsStream(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	sink := NewSink(client, WithMaxLen(2))

	ch, err := sink.Resolve(ctx, "orders")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, ch.Send(ctx, outbox.Envelope{Payload: []byte("x")}))
	}

	n, err := client.XLen(ctx, "orders").Result()
	require.NoError(t, err)
	require.LessOrEqual(t, n, int64(5))
	require.GreaterOrEqual(t, n, int64(2))
}

func TestSinkRejectsInvalidStream(t *testing.T) {
	_, client := newTestClient(t)
	sink := NewSink(client)

	for _, name := range []string{"", "  ", "orders created"} {
		_, err := sink.Resolve(context.Background(), name)
		require.ErrorIs(t, err, ErrInvalidStream)
	}
}

func TestSinkSendFailsWhenServerDown(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	sink := NewSink(client)

	ch, err := sink.Resolve(ctx, "orders")
	require.NoError(t, err)
	mr.Close()

	err = ch.Send(ctx, outbox.Envelope{Payload: []byte("x")})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidStream))
}
