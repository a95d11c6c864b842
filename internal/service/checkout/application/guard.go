// internal/service/checkout/application/guard.go
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vertex/internal/pkg/logger"
	"vertex/internal/service/checkout/domain"
	"vertex/internal/service/checkout/metrics"
)

// GuardConfig 是限流窗口参数。
type GuardConfig struct {
	OrdersPerWindow  int
	OrdersWindow     time.Duration
	IntentsPerWindow int
	IntentsWindow    time.Duration
}

// RateGuard 包裹结算管道的入口：按身份/IP 做滑动窗口限流，
// 并把可疑特征记入审计通道。启发式只记录、不拦截。
type RateGuard struct {
	limiter domain.RateLimiter
	audit   domain.AuditSink
	cfg     GuardConfig
}

func NewRateGuard(limiter domain.RateLimiter, audit domain.AuditSink, cfg GuardConfig) *RateGuard {
	return &RateGuard{limiter: limiter, audit: audit, cfg: cfg}
}

// AllowOrderCreation 校验下单频率。超限返回 ErrRateLimited 并落审计。
func (g *RateGuard) AllowOrderCreation(ctx context.Context, caller Caller) error {
	return g.allow(ctx, caller, "orders", g.cfg.OrdersPerWindow, g.cfg.OrdersWindow)
}

// AllowIntentCreation 校验支付意图创建频率。
func (g *RateGuard) AllowIntentCreation(ctx context.Context, caller Caller) error {
	return g.allow(ctx, caller, "intents", g.cfg.IntentsPerWindow, g.cfg.IntentsWindow)
}

func (g *RateGuard) allow(ctx context.Context, caller Caller, scope string, limit int, window time.Duration) error {
	if limit <= 0 {
		return nil
	}
	ok, err := g.limiter.Allow(ctx, "checkout:rl:"+scope+":"+caller.Key(), limit, window)
	if err != nil {
		// 限流器故障时放行：限流是保护措施，不应成为单点
		logger.Ctx(ctx).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		return nil
	}
	if !ok {
		metrics.RateLimited.Inc()
		g.audit.Write(ctx, &domain.AuditEvent{
			Kind:      domain.AuditRateLimited,
			Identity:  caller.UserID,
			IP:        caller.IP,
			UserAgent: caller.UserAgent,
			Detail:    fmt.Sprintf("%s window exceeded (%d per %s)", scope, limit, window),
			At:        time.Now().UTC(),
		})
		return domain.ErrRateLimited
	}
	return nil
}

// 已知的脚本化客户端特征。命中只记审计，从不单独拦截请求。
var suspiciousAgents = []string{"curl/", "python-requests", "go-http-client", "httpie"}

// InspectCart 检查已知的篡改特征：一分钱价格、可疑 User-Agent。
func (g *RateGuard) InspectCart(ctx context.Context, caller Caller, lines []CartLineDTO) {
	for _, l := range lines {
		if l.UnitPrice == 1 {
			g.audit.Write(ctx, &domain.AuditEvent{
				Kind:      domain.AuditTamperHeuristic,
				Identity:  caller.UserID,
				IP:        caller.IP,
				UserAgent: caller.UserAgent,
				Detail:    fmt.Sprintf("unit price of one minor unit for product %s", l.ProductID),
				At:        time.Now().UTC(),
			})
			break
		}
	}

	ua := strings.ToLower(caller.UserAgent)
	for _, marker := range suspiciousAgents {
		if strings.Contains(ua, marker) {
			g.audit.Write(ctx, &domain.AuditEvent{
				Kind:      domain.AuditTamperHeuristic,
				Identity:  caller.UserID,
				IP:        caller.IP,
				UserAgent: caller.UserAgent,
				Detail:    "suspicious user agent",
				At:        time.Now().UTC(),
			})
			break
		}
	}
}
