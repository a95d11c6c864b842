package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"vertex/internal/service/checkout/domain"
)

type mockLock struct {
	held     bool
	unlocked bool
}

func (m *mockLock) TryLock() (bool, error) { return m.held, nil }
func (m *mockLock) Unlock() error          { m.unlocked = true; return nil }

func expiredReservation(ref string) *domain.Reservation {
	now := time.Now().Add(-time.Hour)
	return domain.NewReservation(ref, "user-1", "", nil, domain.PricingBreakdown{}, domain.Address{}, now, 15*time.Minute)
}

func TestSweeper_CancelsDueReservations(t *testing.T) {
	store := newMockReservations()
	require.NoError(t, store.Create(context.Background(), expiredReservation("pi_old")))

	s := NewSweeper(store, &mockLock{held: true}, otel.Tracer("test"), time.Hour, 100)
	s.sweepOnce(context.Background())

	r, err := store.Get(context.Background(), "pi_old")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, r.Status)
}

func TestSweeper_SkipsWhenNotLeader(t *testing.T) {
	store := newMockReservations()
	require.NoError(t, store.Create(context.Background(), expiredReservation("pi_old")))

	s := NewSweeper(store, &mockLock{held: false}, otel.Tracer("test"), time.Hour, 100)
	s.sweepOnce(context.Background())

	r, err := store.Get(context.Background(), "pi_old")
	require.NoError(t, err)
	assert.True(t, r.Pending(), "non-leader instance must not sweep")
}

func TestSweeper_RunStopsOnCancelAndReleasesLock(t *testing.T) {
	lock := &mockLock{held: true}
	s := NewSweeper(newMockReservations(), lock, otel.Tracer("test"), 10*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
	assert.True(t, lock.unlocked)
}
