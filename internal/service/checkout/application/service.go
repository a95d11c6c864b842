// internal/service/checkout/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vertex/internal/pkg/logger"
	"vertex/internal/service/checkout/domain"
	"vertex/internal/service/checkout/metrics"
)

// orderNumberRetries 是订单号撞唯一索引时的重试上限。
const orderNumberRetries = 3

// Deps 汇集 CheckoutService 的全部出站依赖。
type Deps struct {
	Catalog      domain.CatalogReader
	Promotions   domain.PromotionRepository
	Orders       domain.OrderRepository
	Reservations domain.ReservationStore
	Gateway      domain.PaymentGateway
	Notifier     domain.NotificationProducer
	Audit        domain.AuditSink
	Rules        domain.RuleEngine
	Pricing      domain.PricingConfigSource
	Guard        *RateGuard
	Tracer       trace.Tracer

	CallbackSecret string
	Currency       string
	ReservationTTL time.Duration
}

// CheckoutService 编排结算管道：
// 价格校验 -> 优惠评估 -> 计价聚合 -> 支付预订单 -> 订单物化。
type CheckoutService struct {
	deps Deps
	now  func() time.Time
}

func NewCheckoutService(deps Deps) *CheckoutService {
	return &CheckoutService{deps: deps, now: time.Now}
}

// ValidatePromo 试算一次优惠。纯读路径：重复调用没有任何副作用，
// 用量账本只在真正下单时落账。
func (s *CheckoutService) ValidatePromo(ctx context.Context, caller Caller, req *ValidatePromoRequest) (*ValidatePromoResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.ValidatePromo")
	defer span.End()
	span.SetAttributes(attribute.String("promo.code", req.PromoCode))

	lines, itemsTotal, err := s.verifyCart(ctx, caller, req.Lines)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	discount, _, err := s.evaluatePromo(ctx, req.PromoCode, caller, lines, itemsTotal)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cfg, err := s.deps.Pricing.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	breakdown := domain.ComputeBreakdown(domain.BreakdownInput{
		ItemsTotal:    itemsTotal,
		Discount:      discount.Amount,
		WaiveShipping: discount.FreeShipping,
	}, cfg)

	return &ValidatePromoResponse{
		Valid:     true,
		Discount:  discount.Amount,
		Breakdown: breakdown,
	}, nil
}

// CreatePaymentIntent 发起一次网关支付：整单校验、计价、向网关申请
// intent，并以其 ID 为键落一条带 TTL 的预订单。
func (s *CheckoutService) CreatePaymentIntent(ctx context.Context, caller Caller, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.CreatePaymentIntent")
	defer span.End()

	if err := s.deps.Guard.AllowIntentCreation(ctx, caller); err != nil {
		return nil, err
	}
	s.deps.Guard.InspectCart(ctx, caller, req.Lines)

	lines, itemsTotal, err := s.verifyCart(ctx, caller, req.Lines)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	discount, promo, err := s.evaluatePromo(ctx, req.PromoCode, caller, lines, itemsTotal)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cfg, err := s.deps.Pricing.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	breakdown := domain.ComputeBreakdown(domain.BreakdownInput{
		ItemsTotal:    itemsTotal,
		Discount:      discount.Amount,
		WaiveShipping: discount.FreeShipping,
	}, cfg)

	if req.ExpectedTotal > 0 {
		if err := breakdown.CheckExpected(req.ExpectedTotal); err != nil {
			s.writeAmountMismatchAudit(ctx, caller, err)
			span.RecordError(err)
			return nil, err
		}
	}

	intentID, err := s.deps.Gateway.CreateIntent(ctx, breakdown.GrandTotal, s.deps.Currency, map[string]string{
		"identity":   caller.UserID,
		"promo_code": req.PromoCode,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment intent creation failed")
		return nil, err
	}

	now := s.now()
	reservation := domain.NewReservation(intentID, caller.UserID, domain.NormalizeCode(req.PromoCode),
		lines, breakdown, req.ShippingAddress, now, s.deps.ReservationTTL)
	if promo != nil {
		reservation.PromoID = promo.ID
	}
	if err := s.deps.Reservations.Create(ctx, reservation); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("payment.intent_id", intentID),
		attribute.Int64("pricing.grand_total", breakdown.GrandTotal),
	)
	logger.Ctx(ctx).Info().
		Str("intent_id", intentID).
		Int64("amount", breakdown.GrandTotal).
		Msg("payment reservation created")

	return &CreateIntentResponse{
		IntentID:  intentID,
		Amount:    breakdown.GrandTotal,
		Currency:  s.deps.Currency,
		ExpiresAt: reservation.ExpiresAt,
		Breakdown: breakdown,
	}, nil
}

// ConfirmPayment 处理网关的异步回调。重复投递同一笔支付引用是常态，
// 预订单的条件状态迁移保证最终只产生一个订单。
func (s *CheckoutService) ConfirmPayment(ctx context.Context, req *PaymentCallbackRequest) (*PaymentCallbackResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", req.IntentID))

	reservation, err := s.deps.Reservations.Get(ctx, req.IntentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !domain.VerifyCallbackSignature(s.deps.CallbackSecret, req.IntentID, req.PaymentRef, req.Signature) {
		// 签名不合法：进入不可重试的终态，并落审计
		if _, ferr := s.deps.Reservations.MarkPaymentFailed(ctx, req.IntentID); ferr != nil {
			logger.Ctx(ctx).Error().Err(ferr).Msg("failed to mark reservation as payment failed")
		}
		s.deps.Audit.Write(ctx, &domain.AuditEvent{
			Kind:     domain.AuditSignatureInvalid,
			Identity: reservation.Identity,
			Detail:   "invalid HMAC signature on payment callback for intent " + req.IntentID,
			At:       s.now().UTC(),
		})
		metrics.PaymentCallbacks.WithLabelValues("signature_invalid").Inc()
		span.SetStatus(codes.Error, "callback signature invalid")
		return nil, domain.ErrSignatureInvalid
	}

	now := s.now()
	if reservation.Pending() && reservation.Expired(now) {
		// 迟到的回调：预订单已超出存活窗口，确认为 no-op，绝不复活
		metrics.PaymentCallbacks.WithLabelValues("expired").Inc()
		return nil, domain.ErrReservationExpired
	}

	result, err := s.deps.Reservations.MarkPaid(ctx, req.IntentID, req.PaymentRef, req.Signature, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch result {
	case domain.TransitionApplied:
		// 本次调用赢得了 PAID 迁移，负责物化订单
	case domain.TransitionNoop:
		metrics.PaymentCallbacks.WithLabelValues("duplicate").Inc()
		if reservation.LinkedOrderRef != "" {
			order, ferr := s.deps.Orders.FindByID(ctx, reservation.LinkedOrderRef)
			if ferr != nil {
				return nil, ferr
			}
			return &PaymentCallbackResponse{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Status:      "confirmed",
				Message:     "payment already recorded",
			}, nil
		}
		// 已是 PAID 但尚未关联订单：上一次物化可能中断，继续走物化，
		// 订单表上的支付引用唯一索引会吞掉重复
	case domain.TransitionRejected:
		fresh, gerr := s.deps.Reservations.Get(ctx, req.IntentID)
		if gerr == nil && fresh.Status == domain.ReservationPaymentFailed {
			metrics.PaymentCallbacks.WithLabelValues("failed").Inc()
			return nil, domain.NewValidationError("payment attempt already failed; start a new checkout")
		}
		metrics.PaymentCallbacks.WithLabelValues("expired").Inc()
		return nil, domain.ErrReservationExpired
	}

	reservation.PaymentRef = req.PaymentRef
	reservation.Signature = req.Signature
	order, err := s.materializeFromReservation(ctx, reservation, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order materialization failed")
		return nil, err
	}

	metrics.PaymentCallbacks.WithLabelValues("ok").Inc()
	metrics.OrdersCreated.WithLabelValues(string(domain.PaymentGatewayMethod)).Inc()
	logger.Ctx(ctx).Info().
		Str("intent_id", req.IntentID).
		Str("order_number", order.OrderNumber).
		Msg("paid reservation materialized into order")

	return &PaymentCallbackResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      "confirmed",
	}, nil
}

// PlaceCodOrder 是货到付款的直接下单路径：同步走完校验与计价，
// 不经过网关与预订单。
func (s *CheckoutService) PlaceCodOrder(ctx context.Context, caller Caller, req *PlaceCodOrderRequest) (*OrderResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.PlaceCodOrder")
	defer span.End()

	if err := s.deps.Guard.AllowOrderCreation(ctx, caller); err != nil {
		return nil, err
	}
	s.deps.Guard.InspectCart(ctx, caller, req.Lines)

	lines, itemsTotal, err := s.verifyCart(ctx, caller, req.Lines)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	discount, promo, err := s.evaluatePromo(ctx, req.PromoCode, caller, lines, itemsTotal)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cfg, err := s.deps.Pricing.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	breakdown := domain.ComputeBreakdown(domain.BreakdownInput{
		ItemsTotal:    itemsTotal,
		Discount:      discount.Amount,
		WaiveShipping: discount.FreeShipping,
		Surcharge:     cfg.CodSurcharge,
	}, cfg)

	if req.ExpectedTotal > 0 {
		if err := breakdown.CheckExpected(req.ExpectedTotal); err != nil {
			s.writeAmountMismatchAudit(ctx, caller, err)
			span.RecordError(err)
			return nil, err
		}
	}

	now := s.now()
	order := domain.NewCodOrder(caller.UserID, domain.NormalizeCode(req.PromoCode),
		lines, breakdown, req.ShippingAddress, now)

	var usage *domain.UsageRecord
	if promo != nil {
		usage = &domain.UsageRecord{
			PromotionID:    promo.ID,
			Identity:       caller.UserID,
			OrderID:        order.ID,
			OrderValue:     breakdown.ItemsTotal,
			DiscountAmount: breakdown.Discount,
			UsedAt:         now,
		}
	}

	if err := s.createWithRetry(ctx, order, usage, now); err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(string(domain.PaymentCOD)).Inc()
	s.notifyAsync(ctx, order)
	logger.Ctx(ctx).Info().
		Str("order_number", order.OrderNumber).
		Int64("grand_total", breakdown.GrandTotal).
		Msg("cod order placed")

	return toOrderResponse(order), nil
}

// GetOrder 按 ID 查询订单。非管理员只能看到自己的订单，
// 越权访问一律按不存在处理，不泄露订单是否存在。
func (s *CheckoutService) GetOrder(ctx context.Context, caller Caller, orderID string) (*OrderResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.GetOrder")
	defer span.End()

	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if caller.Role != "admin" && order.Identity != caller.UserID {
		return nil, domain.ErrNotFound
	}
	return toOrderResponse(order), nil
}

// UpdateOrderStatus 是暴露给履约/后台层的状态流转操作。
func (s *CheckoutService) UpdateOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus) (*OrderResponse, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "checkout.UpdateOrderStatus")
	defer span.End()

	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.TransitionTo(to, s.now()); err != nil {
		return nil, err
	}
	if err := s.deps.Orders.UpdateStatus(ctx, order); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return toOrderResponse(order), nil
}

// verifyCart 拉取目录快照并逐行校验。价格不符会额外落一条审计。
func (s *CheckoutService) verifyCart(ctx context.Context, caller Caller, dtoLines []CartLineDTO) ([]domain.VerifiedLine, int64, error) {
	lines := toDomainLines(dtoLines)
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	catalog, err := s.deps.Catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	verified, total, err := domain.VerifyLines(lines, catalog)
	if err != nil {
		var mismatch *domain.PriceMismatchError
		if errors.As(err, &mismatch) {
			s.deps.Audit.Write(ctx, &domain.AuditEvent{
				Kind:      domain.AuditPriceMismatch,
				Identity:  caller.UserID,
				IP:        caller.IP,
				UserAgent: caller.UserAgent,
				Detail:    mismatch.Error(),
				At:        s.now().UTC(),
			})
		}
		return nil, 0, err
	}
	return verified, total, nil
}

// evaluatePromo 执行优惠评估。code 为空时返回零折扣。
// 用量计数以快照读入，评估本身是纯函数。
func (s *CheckoutService) evaluatePromo(ctx context.Context, code string, caller Caller,
	lines []domain.VerifiedLine, itemsTotal int64) (domain.Discount, *domain.Promotion, error) {
	if code == "" {
		return domain.Discount{}, nil, nil
	}

	promo, err := s.deps.Promotions.FindByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.PromoValidations.WithLabelValues(string(domain.PromoNotFound)).Inc()
			return domain.Discount{}, nil, &domain.PromotionError{
				Subcode: domain.PromoNotFound,
				Message: "promotion code " + code + " does not exist",
			}
		}
		return domain.Discount{}, nil, err
	}

	input := domain.EvalInput{
		OrderValue:  itemsTotal,
		CategoryIDs: domain.CategoryIDs(lines),
		ProductIDs:  domain.ProductIDs(lines),
		Identity:    caller.UserID,
		Now:         s.now(),
	}
	if promo.GlobalUsageLimit > 0 {
		input.GlobalUsage, err = s.deps.Promotions.GlobalUsageCount(ctx, promo.ID)
		if err != nil {
			return domain.Discount{}, nil, err
		}
	}
	if caller.UserID != "" && promo.PerIdentityUsageLimit > 0 {
		input.IdentityUsage, err = s.deps.Promotions.IdentityUsageCount(ctx, promo.ID, caller.UserID)
		if err != nil {
			return domain.Discount{}, nil, err
		}
	}

	discount, err := promo.Evaluate(input)
	if err != nil {
		var perr *domain.PromotionError
		if errors.As(err, &perr) {
			metrics.PromoValidations.WithLabelValues(string(perr.Subcode)).Inc()
		}
		return domain.Discount{}, nil, err
	}

	// 扩展规则是内置范围检查之外的最后一道适用性闸门
	if promo.RuleExpression != "" {
		ok, rerr := s.deps.Rules.Evaluate(promo.RuleExpression, domain.Fact{
			OrderValue:  itemsTotal,
			CategoryIDs: input.CategoryIDs,
			ProductIDs:  input.ProductIDs,
			Identity:    caller.UserID,
		})
		if rerr != nil {
			return domain.Discount{}, nil, rerr
		}
		if !ok {
			metrics.PromoValidations.WithLabelValues(string(domain.PromoNotApplicable)).Inc()
			return domain.Discount{}, nil, &domain.PromotionError{
				Subcode: domain.PromoNotApplicable,
				Message: "promotion rule does not match this order",
			}
		}
	}

	metrics.PromoValidations.WithLabelValues("ok").Inc()
	return discount, promo, nil
}

// materializeFromReservation 把已支付的预订单转成持久订单，
// 并在同一数据库事务里提交优惠用量。
func (s *CheckoutService) materializeFromReservation(ctx context.Context, r *domain.Reservation, now time.Time) (*domain.Order, error) {
	order := domain.NewOrderFromReservation(r, now)

	var usage *domain.UsageRecord
	if r.PromoID != 0 {
		usage = &domain.UsageRecord{
			PromotionID:    r.PromoID,
			Identity:       r.Identity,
			OrderID:        order.ID,
			OrderValue:     r.Breakdown.ItemsTotal,
			DiscountAmount: r.Breakdown.Discount,
			UsedAt:         now,
		}
	}

	if err := s.createWithRetry(ctx, order, usage, now); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrderRef) {
			// 并发回调或中断后的重放：订单早已存在，取回即可
			return s.deps.Orders.FindByExternalRef(ctx, r.ExternalPaymentRef)
		}
		return nil, err
	}

	if _, err := s.deps.Reservations.MarkConverted(ctx, r.ExternalPaymentRef, order.ID); err != nil {
		// 订单已落库，转换标记失败只记日志，清扫与重放路径都能自愈
		logger.Ctx(ctx).Error().Err(err).
			Str("intent_id", r.ExternalPaymentRef).
			Msg("failed to mark reservation as converted")
	}

	s.notifyAsync(ctx, order)
	return order, nil
}

// createWithRetry 创建订单，订单号碰撞时换号重试。
func (s *CheckoutService) createWithRetry(ctx context.Context, order *domain.Order, usage *domain.UsageRecord, now time.Time) error {
	var err error
	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		err = s.deps.Orders.Create(ctx, order, usage)
		if !errors.Is(err, domain.ErrDuplicateOrderNo) {
			return err
		}
		order.RegenerateOrderNumber(now)
	}
	return err
}

// notifyAsync 在独立的后台上下文里投递下单通知。
// 只保留链路信息、剥离父级超时，失败绝不影响订单创建。
func (s *CheckoutService) notifyAsync(ctx context.Context, order *domain.Order) {
	spanContext := trace.SpanContextFromContext(ctx)
	bgCtx := trace.ContextWithRemoteSpanContext(context.Background(), spanContext)

	ev := &domain.OrderPlacedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Identity:      order.Identity,
		GrandTotal:    order.Breakdown.GrandTotal,
		PaymentMethod: string(order.PaymentMethod),
		PlacedAt:      order.CreatedAt,
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(bgCtx, 5*time.Second)
		defer cancel()
		if err := s.deps.Notifier.OrderPlaced(sendCtx, ev); err != nil {
			logger.Ctx(sendCtx).Warn().Err(err).
				Str("order_number", ev.OrderNumber).
				Msg("order notification dispatch failed")
		}
	}()
}

func (s *CheckoutService) writeAmountMismatchAudit(ctx context.Context, caller Caller, err error) {
	s.deps.Audit.Write(ctx, &domain.AuditEvent{
		Kind:      domain.AuditAmountMismatch,
		Identity:  caller.UserID,
		IP:        caller.IP,
		UserAgent: caller.UserAgent,
		Detail:    err.Error(),
		At:        s.now().UTC(),
	})
}
