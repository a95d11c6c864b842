// internal/service/checkout/infrastructure/redis_ratelimit_test.go
package infrastructure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateMember_UniquePerCall(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 123456789, time.UTC)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		m := rateMember(now)
		_, dup := seen[m]
		assert.False(t, dup, "member %q generated twice for the same instant", m)
		seen[m] = struct{}{}
	}
}
