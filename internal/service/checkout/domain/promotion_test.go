package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activePromo() *Promotion {
	return &Promotion{
		ID:         1,
		Code:       "SAVE20",
		Kind:       KindPercentage,
		Value:      20,
		Scope:      ScopeAll,
		ValidFrom:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Active:     true,
	}
}

func evalAt(day int, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE20", NormalizeCode("  save20 "))
	assert.Equal(t, "SAVE20", NormalizeCode("Save20"))
}

func TestEvaluate_PercentageWithCap(t *testing.T) {
	p := activePromo()
	p.MaxDiscount = 200

	d, err := p.Evaluate(EvalInput{OrderValue: 2000, Now: evalAt(15, 12)})
	require.NoError(t, err)
	assert.Equal(t, int64(200), d.Amount, "20% of 2000 capped at 200")

	d, err = p.Evaluate(EvalInput{OrderValue: 500, Now: evalAt(15, 12)})
	require.NoError(t, err)
	assert.Equal(t, int64(100), d.Amount, "cap not reached")
}

func TestEvaluate_FixedNeverExceedsOrderValue(t *testing.T) {
	p := activePromo()
	p.Kind = KindFixed
	p.Value = 500

	d, err := p.Evaluate(EvalInput{OrderValue: 300, Now: evalAt(15, 12)})
	require.NoError(t, err)
	assert.Equal(t, int64(300), d.Amount)
}

func TestEvaluate_FreeShipping(t *testing.T) {
	p := activePromo()
	p.Kind = KindFreeShipping
	p.Value = 0

	d, err := p.Evaluate(EvalInput{OrderValue: 300, Now: evalAt(15, 12)})
	require.NoError(t, err)
	assert.True(t, d.FreeShipping)
	assert.Equal(t, int64(0), d.Amount)
}

func TestEvaluate_WindowIsCalendarDayInclusive(t *testing.T) {
	p := activePromo()

	// 截止日当天最后一刻仍然有效
	_, err := p.Evaluate(EvalInput{OrderValue: 100, Now: evalAt(31, 23)})
	assert.NoError(t, err)

	// 开始日凌晨已经有效
	_, err = p.Evaluate(EvalInput{OrderValue: 100, Now: evalAt(1, 0)})
	assert.NoError(t, err)

	_, err = p.Evaluate(EvalInput{OrderValue: 100, Now: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)})
	require.Error(t, err)
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoExpired, perr.Subcode)
}

func TestEvaluate_BelowMinimumReportsShortfall(t *testing.T) {
	p := activePromo()
	p.MinOrderValue = 1000

	_, err := p.Evaluate(EvalInput{OrderValue: 750, Now: evalAt(15, 12)})
	require.Error(t, err)
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoBelowMinimum, perr.Subcode)
	assert.Contains(t, perr.Message, "250", "message names the shortfall")
}

func TestEvaluate_ScopeMatching(t *testing.T) {
	p := activePromo()
	p.Scope = ScopeCategory
	p.ScopeValues = []string{"electronics"}

	_, err := p.Evaluate(EvalInput{
		OrderValue:  100,
		CategoryIDs: []string{"books"},
		Now:         evalAt(15, 12),
	})
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoNotApplicable, perr.Subcode)

	// 任意一个类目命中即可
	_, err = p.Evaluate(EvalInput{
		OrderValue:  100,
		CategoryIDs: []string{"books", "electronics"},
		Now:         evalAt(15, 12),
	})
	assert.NoError(t, err)
}

func TestEvaluate_PerIdentityUsageLimit(t *testing.T) {
	p := activePromo()
	p.PerIdentityUsageLimit = 2

	_, err := p.Evaluate(EvalInput{
		OrderValue:    100,
		Identity:      "user-1",
		IdentityUsage: 2,
		Now:           evalAt(15, 12),
	})
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoUsageExceeded, perr.Subcode)

	// 匿名调用方无法按身份计数，不适用个人限次
	_, err = p.Evaluate(EvalInput{OrderValue: 100, Now: evalAt(15, 12)})
	assert.NoError(t, err)
}

func TestEvaluate_GlobalExhaustion(t *testing.T) {
	p := activePromo()
	p.GlobalUsageLimit = 100

	_, err := p.Evaluate(EvalInput{OrderValue: 100, GlobalUsage: 100, Now: evalAt(15, 12)})
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoExhausted, perr.Subcode)
}

func TestEvaluate_InactiveLooksLikeMissing(t *testing.T) {
	p := activePromo()
	p.Active = false

	_, err := p.Evaluate(EvalInput{OrderValue: 100, Now: evalAt(15, 12)})
	var perr *PromotionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PromoNotFound, perr.Subcode)
}

func TestPromotionError_MatchesSentinel(t *testing.T) {
	p := activePromo()
	p.MinOrderValue = 1000

	_, err := p.Evaluate(EvalInput{OrderValue: 1, Now: evalAt(15, 12)})
	assert.ErrorIs(t, err, ErrPromotionInvalid)
}

func TestIsCurrentlyValid(t *testing.T) {
	p := activePromo()
	p.GlobalUsageLimit = 10

	assert.True(t, p.IsCurrentlyValid(evalAt(15, 12), 9))
	assert.False(t, p.IsCurrentlyValid(evalAt(15, 12), 10))
	assert.False(t, p.IsCurrentlyValid(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), 0))
}
