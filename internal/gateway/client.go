package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/google/uuid"
)

// Client talks to the payment gateway's REST API. Verification is fail-soft:
// any condition that prevents a definitive answer maps to still_pending,
// because the gateway not confirming a payment is not evidence it failed.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *Breaker
	logger     *slog.Logger
}

func NewClient(cfg internal.GatewayConfig, breaker *Breaker, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.VerifyTimeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

type verifyResponse struct {
	Status  bool       `json:"status"`
	Message string     `json:"message"`
	Data    verifyData `json:"data"`
}

type verifyData struct {
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Channel         string     `json:"channel"`
	Fees            int64      `json:"fees"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
	Customer        struct {
		Email string `json:"email"`
	} `json:"customer"`
}

func stillPending() *payment.Outcome {
	return &payment.Outcome{Status: payment.OutcomeStillPending}
}

// VerifyTransaction asks the gateway for the authoritative state of a
// reference. Network errors, timeouts, 5xx responses, unknown references and
// an open breaker all come back as still_pending, never as an error.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*payment.Outcome, error) {
	if !c.breaker.Allow(ctx) {
		c.logger.Warn("gateway circuit open, skipping verification", "reference", reference)
		return stillPending(), nil
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("gateway verification request failed",
			"reference", reference,
			"error", err)
		return stillPending(), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("gateway verification read failed",
			"reference", reference,
			"error", err)
		return stillPending(), nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("gateway rejected credentials",
			"reference", reference,
			"status_code", resp.StatusCode)
		c.breaker.RecordAuthFailure(ctx)
		return stillPending(), nil
	case resp.StatusCode >= http.StatusInternalServerError:
		c.logger.Warn("gateway verification returned server error",
			"reference", reference,
			"status_code", resp.StatusCode)
		return stillPending(), nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warn("gateway does not know reference",
			"reference", reference)
		c.breaker.Reset(ctx)
		return stillPending(), nil
	case resp.StatusCode != http.StatusOK:
		c.logger.Warn("gateway verification returned unexpected status",
			"reference", reference,
			"status_code", resp.StatusCode)
		return stillPending(), nil
	}

	c.breaker.Reset(ctx)

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Warn("gateway verification response unparseable",
			"reference", reference,
			"error", err)
		return stillPending(), nil
	}

	out := &payment.Outcome{
		Status:          mapGatewayStatus(parsed.Data.Status),
		Amount:          parsed.Data.Amount,
		Currency:        parsed.Data.Currency,
		Channel:         parsed.Data.Channel,
		Fees:            parsed.Data.Fees,
		PaidAt:          parsed.Data.PaidAt,
		CustomerEmail:   parsed.Data.Customer.Email,
		GatewayResponse: body,
	}

	c.logger.Info("gateway verification completed",
		"reference", reference,
		"gateway_status", parsed.Data.Status,
		"amount", parsed.Data.Amount)
	return out, nil
}

func mapGatewayStatus(status string) payment.GatewayOutcome {
	switch status {
	case "success":
		return payment.OutcomeSuccess
	case "failed":
		return payment.OutcomeFailed
	case "abandoned":
		return payment.OutcomeAbandoned
	default:
		return payment.OutcomeStillPending
	}
}

type refundRequest struct {
	Transaction    string `json:"transaction"`
	Amount         int64  `json:"amount"`
	MerchantNote   string `json:"merchant_note,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type refundResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// RefundResult is the gateway's acknowledgment of a refund instruction. The
// final verdict arrives later as a transfer.* webhook.
type RefundResult struct {
	ProviderRefundReference string
	IdempotencyKey          string
	Raw                     json.RawMessage
}

// CreateRefund instructs the gateway to refund part or all of a settled
// charge. Unlike verification this is a mutation, so failures surface as
// errors instead of being absorbed.
func (c *Client) CreateRefund(ctx context.Context, transactionReference string, amount int64, reason string) (*RefundResult, error) {
	if !c.breaker.Allow(ctx) {
		return nil, internal.ErrGatewayUnavailable
	}

	idempotencyKey := uuid.NewString()
	payloadBytes, err := json.Marshal(refundRequest{
		Transaction:    transactionReference,
		Amount:         amount,
		MerchantNote:   reason,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal refund request: %w", err)
	}

	endpoint := c.baseURL + "/refund"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("build refund request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("gateway refund request failed",
			"reference", transactionReference,
			"error", err)
		return nil, internal.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, internal.ErrGatewayUnavailable
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.breaker.RecordAuthFailure(ctx)
		return nil, internal.ErrGatewayUnavailable
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("gateway refund rejected",
			"reference", transactionReference,
			"status_code", resp.StatusCode,
			"body", string(body))
		return nil, internal.ErrGatewayUnavailable
	}

	c.breaker.Reset(ctx)

	var parsed refundResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse refund response: %w", err)
	}

	c.logger.Info("gateway refund accepted",
		"reference", transactionReference,
		"refund_reference", parsed.Data.Reference,
		"amount", amount)
	return &RefundResult{
		ProviderRefundReference: parsed.Data.Reference,
		IdempotencyKey:          idempotencyKey,
		Raw:                     body,
	}, nil
}
