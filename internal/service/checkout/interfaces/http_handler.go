// internal/service/checkout/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"vertex/internal/pkg/logger"
	"vertex/internal/service/checkout/application"
	"vertex/internal/service/checkout/domain"
)

// maxBodyBytes 限制请求体大小，结算请求不应该超过这个量级。
const maxBodyBytes = 1 << 20

// CheckoutHandler 封装了 checkout 服务的 HTTP 处理器。
type CheckoutHandler struct {
	service *application.CheckoutService
	audit   domain.AuditSink
}

// NewCheckoutHandler 创建一个新的 HTTP 处理器实例。
func NewCheckoutHandler(service *application.CheckoutService, audit domain.AuditSink) *CheckoutHandler {
	return &CheckoutHandler{service: service, audit: audit}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout/validate-promo", h.handleValidatePromo)
	mux.HandleFunc("POST /checkout/create-intent", h.handleCreateIntent)
	mux.HandleFunc("POST /checkout/confirm-payment", h.handleConfirmPayment)
	mux.HandleFunc("POST /orders", h.handlePlaceCodOrder)
	mux.HandleFunc("GET /orders/{id}", h.handleGetOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.handleUpdateOrderStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *CheckoutHandler) handleValidatePromo(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	caller := callerFromRequest(r)

	var req application.ValidatePromoRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.ValidatePromo(ctx, caller, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	caller := callerFromRequest(r)

	var req application.CreateIntentRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.CreatePaymentIntent(ctx, caller, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.PaymentCallbackRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.IntentID == "" || req.PaymentRef == "" || req.Signature == "" {
		writeErrorBody(w, http.StatusBadRequest, "validation_failed", "intent_id, payment_ref and signature are required")
		return
	}

	resp, err := h.service.ConfirmPayment(ctx, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handlePlaceCodOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	caller := callerFromRequest(r)

	var req application.PlaceCodOrderRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.PlaceCodOrder(ctx, caller, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	caller := callerFromRequest(r)

	resp, err := h.service.GetOrder(ctx, caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	caller := callerFromRequest(r)
	if caller.Role != "admin" {
		writeErrorBody(w, http.StatusForbidden, "forbidden", "order status transitions require an admin role")
		return
	}

	var req application.UpdateOrderStatusRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.service.UpdateOrderStatus(ctx, r.PathValue("id"), domain.OrderStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// callerFromRequest 从网关注入的请求头还原调用方身份。
func callerFromRequest(r *http.Request) application.Caller {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// 取链路上最靠近客户端的一跳
		ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	} else {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return application.Caller{
		UserID:    r.Header.Get("X-User-ID"),
		Role:      r.Header.Get("X-User-Role"),
		IP:        ip,
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func (h *CheckoutHandler) decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			// 超大请求体是典型的探测流量，留一条审计记录
			caller := callerFromRequest(r)
			if h.audit != nil {
				h.audit.Write(r.Context(), &domain.AuditEvent{
					Kind:      domain.AuditTamperHeuristic,
					Identity:  caller.UserID,
					IP:        caller.IP,
					UserAgent: caller.UserAgent,
					Detail:    fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
					At:        time.Now(),
				})
			}
			writeErrorBody(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		writeErrorBody(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return false
	}
	return true
}

type errorBody struct {
	Code    string `json:"code"`
	Subcode string `json:"subcode,omitempty"`
	Message string `json:"message"`
}

// writeError 把应用层错误翻译成带稳定机器码的 HTTP 响应。
// 未识别的错误一律 500，细节只进日志不出网。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *domain.ValidationError
		priceErr      *domain.PriceMismatchError
		stockErr      *domain.InsufficientStockError
		amountErr     *domain.AmountMismatchError
		promoErr      *domain.PromotionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeErrorBody(w, http.StatusBadRequest, "validation_failed", validationErr.Message)
	case errors.As(err, &priceErr):
		writeErrorBody(w, http.StatusConflict, "price_mismatch", priceErr.Error())
	case errors.As(err, &stockErr):
		writeErrorBody(w, http.StatusConflict, "insufficient_stock", stockErr.Error())
	case errors.As(err, &amountErr):
		writeErrorBody(w, http.StatusConflict, "amount_mismatch", amountErr.Error())
	case errors.As(err, &promoErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Code:    "promotion_invalid",
			Subcode: string(promoErr.Subcode),
			Message: promoErr.Message,
		})
	case errors.Is(err, domain.ErrSignatureInvalid):
		writeErrorBody(w, http.StatusForbidden, "signature_invalid", "callback signature verification failed")
	case errors.Is(err, domain.ErrReservationExpired):
		writeErrorBody(w, http.StatusGone, "reservation_expired", "payment window has expired, start a new checkout")
	case errors.Is(err, domain.ErrRateLimited):
		writeErrorBody(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeErrorBody(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeErrorBody(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
