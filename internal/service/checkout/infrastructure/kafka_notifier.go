// internal/service/checkout/infrastructure/kafka_notifier.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"

	"vertex/internal/pkg/logger"
	"vertex/internal/pkg/mq"
	"vertex/internal/service/checkout/domain"
)

// auditSendTimeout 限定单条审计消息的投递耗时上限。
const auditSendTimeout = 5 * time.Second

// KafkaNotificationProducer 把订单创建事件投递到通知主题。
// 以身份作为消息 Key，同一用户的通知分区内有序。
type KafkaNotificationProducer struct {
	writer mq.Producer
}

func NewKafkaNotificationProducer(writer mq.Producer) *KafkaNotificationProducer {
	return &KafkaNotificationProducer{writer: writer}
}

func (p *KafkaNotificationProducer) OrderPlaced(ctx context.Context, ev *domain.OrderPlacedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(ev.Identity), payload)
}

// KafkaAuditSink 把审计记录投递到审计主题。尽力而为：
// 投递在独立的后台上下文里异步进行，只保留链路信息、剥离父级超时，
// Kafka 拥塞或不可用都不会拖慢请求路径；失败降级为本地日志。
type KafkaAuditSink struct {
	writer mq.Producer
}

func NewKafkaAuditSink(writer mq.Producer) *KafkaAuditSink {
	return &KafkaAuditSink{writer: writer}
}

func (s *KafkaAuditSink) Write(ctx context.Context, ev *domain.AuditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("kind", string(ev.Kind)).Msg("marshal audit event failed")
		return
	}

	spanContext := trace.SpanContextFromContext(ctx)
	bgCtx := trace.ContextWithRemoteSpanContext(context.Background(), spanContext)
	go func() {
		sendCtx, cancel := context.WithTimeout(bgCtx, auditSendTimeout)
		defer cancel()
		if err := mq.ProduceMessage(sendCtx, s.writer, []byte(ev.Kind), payload); err != nil {
			logger.Ctx(sendCtx).Warn().Err(err).
				Str("kind", string(ev.Kind)).
				Str("detail", ev.Detail).
				Msg("audit event delivery failed, falling back to log")
		}
	}()
}

// LogAuditSink 是审计通道的纯日志实现，供本地开发或 Kafka 不可用时使用。
type LogAuditSink struct{}

func (LogAuditSink) Write(ctx context.Context, ev *domain.AuditEvent) {
	logger.Ctx(ctx).Warn().
		Str("kind", string(ev.Kind)).
		Str("identity", ev.Identity).
		Str("ip", ev.IP).
		Str("detail", ev.Detail).
		Msg("audit event")
}
