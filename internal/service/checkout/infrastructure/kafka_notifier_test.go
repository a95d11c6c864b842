package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertex/internal/service/checkout/domain"
)

// recordingProducer 记录收到的消息。
type recordingProducer struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (p *recordingProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msgs...)
	return nil
}

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// stallingProducer 模拟 Kafka 拥塞：阻塞到调用方上下文取消为止。
type stallingProducer struct{}

func (stallingProducer) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestKafkaAuditSink_WriteDeliversEvent(t *testing.T) {
	producer := &recordingProducer{}
	sink := NewKafkaAuditSink(producer)

	sink.Write(context.Background(), &domain.AuditEvent{
		Kind:     domain.AuditPriceMismatch,
		Identity: "user-1",
		Detail:   "price mismatch for product p-1",
		At:       time.Now().UTC(),
	})

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 10*time.Millisecond)

	producer.mu.Lock()
	defer producer.mu.Unlock()
	msg := producer.messages[0]
	assert.Equal(t, []byte(domain.AuditPriceMismatch), msg.Key)
	var ev domain.AuditEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "user-1", ev.Identity)
}

func TestKafkaAuditSink_WriteNeverBlocksCaller(t *testing.T) {
	sink := NewKafkaAuditSink(stallingProducer{})

	start := time.Now()
	sink.Write(context.Background(), &domain.AuditEvent{
		Kind:   domain.AuditSignatureInvalid,
		Detail: "invalid HMAC signature",
		At:     time.Now().UTC(),
	})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond, "a congested broker must not stall the request path")
}

func TestKafkaAuditSink_DetachedFromRequestContext(t *testing.T) {
	producer := &recordingProducer{}
	sink := NewKafkaAuditSink(producer)

	// 请求上下文立即取消：投递走独立的后台上下文，不受影响
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Write(ctx, &domain.AuditEvent{
		Kind:   domain.AuditRateLimited,
		Detail: "orders window exceeded",
		At:     time.Now().UTC(),
	})

	assert.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestKafkaNotificationProducer_OrderPlaced(t *testing.T) {
	producer := &recordingProducer{}
	notifier := NewKafkaNotificationProducer(producer)

	err := notifier.OrderPlaced(context.Background(), &domain.OrderPlacedEvent{
		OrderID:     "o-1",
		OrderNumber: "ORD-20260315120000-ABCDEF",
		Identity:    "user-1",
		GrandTotal:  586,
	})
	require.NoError(t, err)
	require.Equal(t, 1, producer.count())
	assert.Equal(t, []byte("user-1"), producer.messages[0].Key)
}
