package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nmalhotra/orderflow/internal/payment/domain"
)

// Gateway talks to the external payment provider over HTTP. Authorize never
// returns an error: provider refusals, transport failures, timeouts and
// internal panics all collapse into a failure Result so callers keep a
// single decision surface.
type Gateway struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
}

func New(log *slog.Logger, baseURL string, timeout time.Duration) *Gateway {
	return &Gateway{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type authorizeRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

type authorizeResponse struct {
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

func (g *Gateway) Authorize(ctx context.Context, amount decimal.Decimal) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("payment gateway panic", "panic", r)
			result = domain.Refused(fmt.Sprintf("payment provider error: %v", r))
		}
	}()

	// A non-positive charge reaching the gateway is a caller bug; the
	// orchestrator already skips zero-total orders.
	if !amount.IsPositive() {
		return domain.Refused(fmt.Sprintf("invalid charge amount %s", amount.StringFixed(2)))
	}

	body, err := json.Marshal(authorizeRequest{
		Amount:    amount.StringFixed(2),
		Reference: uuid.NewString(),
	})
	if err != nil {
		return domain.Refused("encode authorize request: " + err.Error())
	}

	resp, err := g.post(ctx, g.baseURL+"/authorize", body)
	if err != nil {
		g.log.Error("payment authorize failed", "err", err)
		return domain.Refused("payment provider unreachable: " + err.Error())
	}
	defer resp.Body.Close()

	var out authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.log.Error("payment authorize decode failed", "err", err)
		return domain.Refused("malformed payment provider response")
	}

	switch {
	case resp.StatusCode == http.StatusOK && out.TransactionID != "":
		return domain.Approved(out.TransactionID)
	case resp.StatusCode == http.StatusOK:
		return domain.Refused("payment provider returned no transaction id")
	case resp.StatusCode == http.StatusPaymentRequired:
		if out.Message == "" {
			out.Message = "payment declined"
		}
		return domain.Refused(out.Message)
	default:
		return domain.Refused(fmt.Sprintf("payment provider status %d", resp.StatusCode))
	}
}

type voidRequest struct {
	TransactionID string `json:"transaction_id"`
}

// Void reverses an earlier authorization. Unlike Authorize it returns an
// error: a failed void leaves money authorized with no matching order, and
// the caller must surface that for reconciliation.
func (g *Gateway) Void(ctx context.Context, transactionID string) error {
	body, err := json.Marshal(voidRequest{TransactionID: transactionID})
	if err != nil {
		return fmt.Errorf("encode void request: %w", err)
	}
	resp, err := g.post(ctx, g.baseURL+"/void", body)
	if err != nil {
		return fmt.Errorf("void transaction %s: %w", transactionID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("void transaction %s: provider status %d", transactionID, resp.StatusCode)
	}
	return nil
}

func (g *Gateway) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.client.Do(req)
}
