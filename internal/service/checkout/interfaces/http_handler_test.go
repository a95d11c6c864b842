package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vertex/internal/service/checkout/application"
	"vertex/internal/service/checkout/domain"
)

type recordingAuditSink struct {
	mu     sync.Mutex
	events []*domain.AuditEvent
}

func (s *recordingAuditSink) Write(_ context.Context, ev *domain.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.NewValidationError("cart is empty"), http.StatusBadRequest, "validation_failed"},
		{"price mismatch", &domain.PriceMismatchError{ProductID: "p-1", Asserted: 1, Canonical: 100}, http.StatusConflict, "price_mismatch"},
		{"stock", &domain.InsufficientStockError{ProductID: "p-1", Requested: 5, Available: 1}, http.StatusConflict, "insufficient_stock"},
		{"amount mismatch", &domain.AmountMismatchError{Expected: 100, Actual: 200}, http.StatusConflict, "amount_mismatch"},
		{"promotion", &domain.PromotionError{Subcode: domain.PromoExpired, Message: "gone"}, http.StatusUnprocessableEntity, "promotion_invalid"},
		{"signature", domain.ErrSignatureInvalid, http.StatusForbidden, "signature_invalid"},
		{"expired", domain.ErrReservationExpired, http.StatusGone, "reservation_expired"},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"transition", fmt.Errorf("%w: CONFIRMED -> DELIVERED", domain.ErrInvalidTransition), http.StatusConflict, "invalid_transition"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"internal", errors.New("database exploded"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/checkout/create-intent", nil)

			writeError(rec, req, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
		})
	}
}

func TestWriteError_InternalHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders/x", nil)

	writeError(rec, req, errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	assert.NotContains(t, rec.Body.String(), "10.0.0.5", "infrastructure detail must not leak")
}

func TestWriteError_PromotionSubcode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkout/validate-promo", nil)

	writeError(rec, req, &domain.PromotionError{Subcode: domain.PromoBelowMinimum, Message: "order value is 250 short of the 1000 minimum"})

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "below-minimum", body.Subcode)
	assert.Contains(t, body.Message, "250")
}

func TestDecodeBody_OversizedBodyIsAudited(t *testing.T) {
	sink := &recordingAuditSink{}
	h := NewCheckoutHandler(nil, sink)

	payload := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkout/create-intent", bytes.NewReader(payload))
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "curl/8.0")

	var out application.CreateIntentRequest
	ok := h.decodeBody(rec, req, &out)

	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "body_too_large", body.Code)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, domain.AuditTamperHeuristic, ev.Kind)
	assert.Equal(t, "user-1", ev.Identity)
	assert.Equal(t, "203.0.113.9", ev.IP)
	assert.Contains(t, ev.Detail, "exceeds")
}

func TestDecodeBody_MalformedBodyIsNotAudited(t *testing.T) {
	sink := &recordingAuditSink{}
	h := NewCheckoutHandler(nil, sink)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/checkout/create-intent", bytes.NewReader([]byte("{not json")))

	var out application.CreateIntentRequest
	ok := h.decodeBody(rec, req, &out)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events)
}

func TestCallerFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Role", "admin")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	c := callerFromRequest(req)
	assert.Equal(t, application.Caller{
		UserID:    "user-1",
		Role:      "admin",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0",
	}, c)
}

func TestCallerFromRequest_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req.RemoteAddr = "192.0.2.4:51234"

	c := callerFromRequest(req)
	assert.Equal(t, "192.0.2.4", c.IP)
	assert.Empty(t, c.UserID)
}
