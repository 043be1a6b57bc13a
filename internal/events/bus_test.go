package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/store"
)

type captureNotifier struct {
	events []store.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event store.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	mem := store.NewMemory()
	notifier := &captureNotifier{}
	bus := events.Bus{Store: mem, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicSaleConfirmed, "V-20250101120000-123", map[string]any{"total": "24.50"})
	require.NoError(t, err)
	require.Equal(t, events.TopicSaleConfirmed, ev.Topic)
	require.JSONEq(t, `{"total":"24.50"}`, string(ev.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.ID, notifier.events[0].ID)
	require.Len(t, mem.Events(), 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: store.NewMemory()}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "V-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicSaleConfirmed, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicSaleConfirmed, "V-1", "not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicSaleConfirmed, "V-1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	first := &captureNotifier{err: errors.New("first")}
	second := &captureNotifier{}
	bus := events.Bus{Store: store.NewMemory(), Notifiers: []events.Notifier{first, nil, second}}

	ev, err := bus.Emit(context.Background(), events.TopicClientCreated, "7", nil)
	require.Error(t, err)
	require.Equal(t, "{}", string(ev.Payload))
	require.Len(t, second.events, 1)
}

func TestLogNotifierWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	bus := events.Bus{
		Store:     store.NewMemory(),
		Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}},
	}
	_, err := bus.Emit(context.Background(), events.TopicClientCreated, "12", map[string]any{"name": "Ana"})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "domain_event", line["message"])
	require.Equal(t, "client.created", line["topic"])
	require.Equal(t, "12", line["aggregate_id"])
}
