// internal/service/checkout/infrastructure/redis_reservation.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgredis "vertex/internal/pkg/redis"
	"vertex/internal/service/checkout/domain"
)

const (
	reservationKeyPrefix = "checkout:resv:"
	reservationDueKey    = "checkout:resv:due"

	// 物理保留期远大于业务 TTL：过期后记录以 CANCELLED 留存一天，
	// 迟到的网关回调能读到明确的终态而不是 ErrNotFound。
	reservationRetention = 24 * time.Hour

	scriptResvTransition = "resv_transition"
	scriptResvExpireDue  = "resv_expire_due"
)

// 通用的条件状态迁移脚本。只有当前状态在 from 集合里才写入目标态，
// 已处于目标态或其后继态返回 noop，其余情况 rejected。
// KEYS[1] = 预订单 hash，KEYS[2] = 到期索引 ZSET
// ARGV[1] = 目标状态，ARGV[2] = from 集合（逗号分隔），ARGV[3] = noop 集合（逗号分隔）
// ARGV[4] = 到期索引成员（空串表示不摘除），ARGV[5..] = 附加写入的 field/value 对
const resvTransitionScript = `
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return 'missing'
end
local function contains(csv, v)
  for item in string.gmatch(csv, '([^,]+)') do
    if item == v then return true end
  end
  return false
end
if contains(ARGV[3], cur) then
  return 'noop'
end
if not contains(ARGV[2], cur) then
  return 'rejected'
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
for i = 5, #ARGV - 1, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
if ARGV[4] ~= '' then
  redis.call('ZREM', KEYS[2], ARGV[4])
end
return 'applied'
`

// 扫描到期索引并取消仍在等待支付的预订单。
// 迁移条件写在脚本里，多实例并发清扫互不干扰。
// KEYS[1] = 到期索引 ZSET
// ARGV[1] = 截止时间戳，ARGV[2] = 批大小，ARGV[3] = hash 键前缀
const resvExpireDueScript = `
local refs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local cancelled = {}
for _, ref in ipairs(refs) do
  local key = ARGV[3] .. ref
  local cur = redis.call('HGET', key, 'status')
  if cur == 'CREATED' or cur == 'PAYMENT_PENDING' then
    redis.call('HSET', key, 'status', 'CANCELLED')
    table.insert(cancelled, ref)
  end
  redis.call('ZREM', KEYS[1], ref)
end
return cancelled
`

// RedisReservationStore 把预订单存为 Redis hash：payload 是创建时刻的
// 不可变快照，status 等可变字段单独存放，由 Lua 脚本做原子条件迁移。
type RedisReservationStore struct {
	client *pkgredis.Client
}

func NewRedisReservationStore(client *pkgredis.Client) (*RedisReservationStore, error) {
	if err := client.LoadScriptFromContent(scriptResvTransition, resvTransitionScript); err != nil {
		return nil, err
	}
	if err := client.LoadScriptFromContent(scriptResvExpireDue, resvExpireDueScript); err != nil {
		return nil, err
	}
	return &RedisReservationStore{client: client}, nil
}

func reservationKey(ref string) string {
	return reservationKeyPrefix + ref
}

func (s *RedisReservationStore) Create(ctx context.Context, r *domain.Reservation) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}

	key := reservationKey(r.ExternalPaymentRef)
	rdb := s.client.GetClient()
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(r.Status),
		"payload", payload,
	)
	pipe.Expire(ctx, key, reservationRetention)
	pipe.ZAdd(ctx, reservationDueKey, goredis.Z{
		Score:  float64(r.ExpiresAt.Unix()),
		Member: r.ExternalPaymentRef,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisReservationStore) Get(ctx context.Context, externalRef string) (*domain.Reservation, error) {
	fields, err := s.client.GetClient().HGetAll(ctx, reservationKey(externalRef)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}

	var r domain.Reservation
	if err := json.Unmarshal([]byte(fields["payload"]), &r); err != nil {
		return nil, fmt.Errorf("unmarshal reservation %s: %w", externalRef, err)
	}
	// 可变字段以 hash 单独存放的值为准
	r.Status = domain.ReservationStatus(fields["status"])
	if v, ok := fields["payment_ref"]; ok {
		r.PaymentRef = v
	}
	if v, ok := fields["signature"]; ok {
		r.Signature = v
	}
	if v, ok := fields["linked_order_ref"]; ok {
		r.LinkedOrderRef = v
	}
	return &r, nil
}

func (s *RedisReservationStore) MarkPaid(ctx context.Context, externalRef, paymentRef, signature string, at time.Time) (domain.TransitionResult, error) {
	return s.transition(ctx, externalRef,
		string(domain.ReservationPaid),
		csv(domain.ReservationCreated, domain.ReservationPaymentPending),
		csv(domain.ReservationPaid, domain.ReservationConverted),
		externalRef,
		"payment_ref", paymentRef,
		"signature", signature,
		"paid_at", at.UTC().Format(time.RFC3339),
	)
}

func (s *RedisReservationStore) MarkPaymentFailed(ctx context.Context, externalRef string) (domain.TransitionResult, error) {
	return s.transition(ctx, externalRef,
		string(domain.ReservationPaymentFailed),
		csv(domain.ReservationCreated, domain.ReservationPaymentPending),
		csv(domain.ReservationPaymentFailed),
		externalRef,
	)
}

func (s *RedisReservationStore) MarkConverted(ctx context.Context, externalRef, orderID string) (domain.TransitionResult, error) {
	return s.transition(ctx, externalRef,
		string(domain.ReservationConverted),
		csv(domain.ReservationPaid),
		csv(domain.ReservationConverted),
		externalRef,
		"linked_order_ref", orderID,
	)
}

func (s *RedisReservationStore) ExpireDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	res, err := s.client.RunScript(ctx, scriptResvExpireDue,
		[]string{reservationDueKey},
		now.Unix(), limit, reservationKeyPrefix)
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, nil
	}
	refs := make([]string, 0, len(raw))
	for _, v := range raw {
		if ref, ok := v.(string); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (s *RedisReservationStore) transition(ctx context.Context, externalRef, target, from, noop, dueMember string, extras ...string) (domain.TransitionResult, error) {
	args := make([]interface{}, 0, 4+len(extras))
	args = append(args, target, from, noop, dueMember)
	for _, e := range extras {
		args = append(args, e)
	}
	res, err := s.client.RunScript(ctx, scriptResvTransition,
		[]string{reservationKey(externalRef), reservationDueKey}, args...)
	if err != nil {
		return "", err
	}
	switch res {
	case "applied":
		return domain.TransitionApplied, nil
	case "noop":
		return domain.TransitionNoop, nil
	case "rejected":
		return domain.TransitionRejected, nil
	case "missing":
		return "", domain.ErrNotFound
	default:
		return "", fmt.Errorf("unexpected transition result %v for %s", res, externalRef)
	}
}

func csv(statuses ...domain.ReservationStatus) string {
	out := ""
	for i, st := range statuses {
		if i > 0 {
			out += ","
		}
		out += string(st)
	}
	return out
}
