package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avdeev-dev/slotbook/config"
	"github.com/avdeev-dev/slotbook/internal/domain"
	"github.com/shopspring/decimal"
)

// LineItem mirrors the gateway's order line format.
type LineItem struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Quantity int             `json:"quantity"`
}

type CreateTransactionRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
	LineItems []LineItem      `json:"line_items"`
	ReturnURL string          `json:"return_url"`
	CancelURL string          `json:"cancel_url"`
}

type Transaction struct {
	ID         string `json:"transaction_id"`
	PaymentURL string `json:"payment_url"`
}

// Client is the HTTP adapter for the external payment gateway. Calls carry
// a short timeout; a timeout means unknown outcome, and callers must not
// assume the transaction failed.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		hc: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.post(ctx, "/v1/transactions", req, &tx); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: gateway returned empty transaction id", domain.ErrGatewayUnavailable)
	}
	return &tx, nil
}

func (c *Client) Capture(ctx context.Context, transactionID string) error {
	body := map[string]string{"transaction_id": transactionID}
	return c.post(ctx, "/v1/transactions/"+transactionID+"/capture", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		// Network errors and timeouts leave the outcome unknown.
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = "request rejected"
		}
		return errors.New("gateway: " + apiErr.Message)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
