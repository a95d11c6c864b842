// internal/service/checkout/infrastructure/payment_http.go
package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"vertex/internal/pkg/httpclient"
)

// HTTPPaymentGateway 通过 HTTP 调用外部支付网关创建支付意图。
// 调用同步、带超时、不重试：失败由调用方决定是否整体放弃。
type HTTPPaymentGateway struct {
	client  *httpclient.Client
	baseURL string
	timeout time.Duration
}

func NewHTTPPaymentGateway(client *httpclient.Client, baseURL string, timeout time.Duration) *HTTPPaymentGateway {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPPaymentGateway{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createIntentResponse struct {
	IntentID string `json:"intent_id"`
}

func (g *HTTPPaymentGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp createIntentResponse
	err := g.client.PostJSON(ctx, g.baseURL+"/v1/intents", &createIntentRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "payment gateway create intent")
	}
	if resp.IntentID == "" {
		return "", fmt.Errorf("payment gateway returned empty intent id")
	}
	return resp.IntentID, nil
}
