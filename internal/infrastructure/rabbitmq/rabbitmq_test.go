package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	calls      []publishCall
	publishErr error
	closed     bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return f.publishErr
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type fakeAcknowledger struct {
	acked  []uint64
	nacked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisherWithChannel(ch, "order-changes")

	err := p.Publish(context.Background(), "user-1", map[string]string{"order_id": "order-1"})

	require.NoError(t, err)
	require.Len(t, ch.calls, 1)
	call := ch.calls[0]
	assert.Equal(t, "order-changes", call.exchange)
	assert.Equal(t, "user-1", call.key)
	assert.Equal(t, "application/json", call.msg.ContentType)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)

	var body map[string]string
	require.NoError(t, json.Unmarshal(call.msg.Body, &body))
	assert.Equal(t, "order-1", body["order_id"])
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p := NewPublisherWithChannel(ch, "order-changes")

	err := p.Publish(context.Background(), "user-1", struct{}{})

	assert.ErrorContains(t, err, "channel closed")
}

func TestPublisher_PublishUnmarshalable(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisherWithChannel(ch, "order-changes")

	err := p.Publish(context.Background(), "user-1", make(chan int))

	assert.Error(t, err)
	assert.Empty(t, ch.calls)
}

func TestHandleDelivery_AckOnSuccess(t *testing.T) {
	ack := &fakeAcknowledger{}
	var gotKey, gotBody string
	handler := func(ctx context.Context, key, value []byte) error {
		gotKey, gotBody = string(key), string(value)
		return nil
	}

	handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		RoutingKey:   "user-1",
		Body:         []byte(`{"order_id":"order-1"}`),
	}, handler)

	assert.Equal(t, "user-1", gotKey)
	assert.JSONEq(t, `{"order_id":"order-1"}`, gotBody)
	assert.Equal(t, []uint64{7}, ack.acked)
	assert.Empty(t, ack.nacked)
}

func TestHandleDelivery_NackOnError(t *testing.T) {
	ack := &fakeAcknowledger{}
	handler := func(ctx context.Context, key, value []byte) error {
		return errors.New("bad payload")
	}

	handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 3}, handler)

	assert.Empty(t, ack.acked)
	assert.Equal(t, []uint64{3}, ack.nacked)
}
