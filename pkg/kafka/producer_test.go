package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	data := map[string]any{"item_count": 3}
	event, err := NewEvent("cart.changed", "so-cart", "storefront", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "cart.changed", event.EventType)
	assert.Equal(t, "so-cart", event.AggregateID)
	assert.Equal(t, "storefront", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"item_count":3}`, string(event.Data))
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("cart.changed", "so-cart", "storefront", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal cart.changed data")
}

func TestEvent_RoundTrip(t *testing.T) {
	original, err := NewEvent("order.submitted", "so-cart", "storefront", map[string]string{"orderTotal": "45.80"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-1")

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Event
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-1", restored.CorrelationID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(restored.Data, &payload))
	assert.Equal(t, "45.80", payload["orderTotal"])
}

// --- Producer ---

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, discardLogger())

	event, err := NewEvent("cart.changed", "so-cart", "storefront", map[string]int{"item_count": 2})
	require.NoError(t, err)
	event.WithCorrelationID("req-9")

	require.NoError(t, p.Publish(context.Background(), "storefront.cart.changed", event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "storefront.cart.changed", msg.Topic)
	assert.Equal(t, "so-cart", string(msg.Key))
	assert.Equal(t, "cart.changed", header(msg, "event_type"))
	assert.Equal(t, "storefront", header(msg, "source"))
	assert.Equal(t, "req-9", header(msg, "correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestProducer_Publish_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &recordingWriter{}
	p := NewProducerWithWriter(w, nil, discardLogger())
	event, err := NewEvent("cart.changed", "so-cart", "storefront", nil)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "storefront.cart.changed", event))
	require.Len(t, w.msgs, 1)
	assert.Contains(t, header(w.msgs[0], "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestProducer_Publish_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, discardLogger())

	event, err := NewEvent("cart.changed", "so-cart", "storefront", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "storefront.cart.changed", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to storefront.cart.changed")
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, discardLogger()).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoneConfigured(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

// --- headerCarrier ---

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := headerCarrier{headers: &headers}

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("new", "v2")
	c.Set("existing", "updated")
	assert.Equal(t, "v2", c.Get("new"))
	assert.Equal(t, "updated", c.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
}
