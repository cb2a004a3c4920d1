package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rakhadjo/payverify/internal/events"
)

type recordNotifier struct {
	got []events.Event
	err error
}

func (n *recordNotifier) Notify(_ context.Context, ev events.Event) error {
	n.got = append(n.got, ev)
	return n.err
}

func TestEmitDispatchesToAllNotifiers(t *testing.T) {
	first := &recordNotifier{}
	second := &recordNotifier{}
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	bus := &events.Bus{
		Notifiers: []events.Notifier{first, second},
		Now:       func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicOrderCreated, "ord_1", map[string]string{"currency": "INR"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, ev.Topic)
	require.Equal(t, "ord_1", ev.OrderID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"currency":"INR"}`, string(ev.Payload))

	require.Len(t, first.got, 1)
	require.Len(t, second.got, 1)
	require.Equal(t, first.got[0], second.got[0])
}

func TestEmitRequiresTopicAndOrderID(t *testing.T) {
	bus := &events.Bus{}
	_, err := bus.Emit(context.Background(), "  ", "ord_1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderVerified, "", nil)
	require.Error(t, err)
}

func TestEmitPayloadEncoding(t *testing.T) {
	bus := &events.Bus{}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentFailed, "ord_1", nil)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage("{}"), ev.Payload)

	ev, err = bus.Emit(context.Background(), events.TopicPaymentFailed, "ord_1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(ev.Payload))

	_, err = bus.Emit(context.Background(), events.TopicPaymentFailed, "ord_1", json.RawMessage(`{"a":`))
	require.Error(t, err)
}

func TestEmitJoinsNotifierFailures(t *testing.T) {
	boom := errors.New("sink down")
	failing := &recordNotifier{err: boom}
	healthy := &recordNotifier{}
	bus := &events.Bus{Notifiers: []events.Notifier{failing, healthy, nil}}

	_, err := bus.Emit(context.Background(), events.TopicReplayRejected, "ord_1", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, healthy.got, 1, "a failing notifier must not starve the others")
}
