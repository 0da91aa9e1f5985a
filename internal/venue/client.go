// Package venue handles interactions with a live prediction-market order
// venue. Requests are HMAC-SHA256 signed with the configured API secret.
package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/agent-arena-bot/internal/config"
)

const defaultBaseURL = "https://api.example-venue.com"

// Order is one signed order submission.
type Order struct {
	MarketID string          `json:"market_id"`
	Action   string          `json:"action"`
	Side     string          `json:"side"`
	SizeUSD  decimal.Decimal `json:"size_usd"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

// OrderResponse is the venue's acknowledgment.
type OrderResponse struct {
	Success          bool            `json:"success"`
	OrderID          string          `json:"order_id"`
	FillPrice        decimal.Decimal `json:"fill_price"`
	Error            string          `json:"error,omitempty"`
	ErrorDescription string          `json:"error_description,omitempty"`
}

// Client provides methods to submit and cancel orders against the venue API.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a venue API client. An empty BaseURL falls back to the
// default endpoint.
func NewClient(cfg config.VenueConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.APISecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Request, error) {
	url := c.baseURL + endpoint
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	// Nanosecond nonce survives restarts, unlike an in-memory counter.
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	message := nonce + url + string(body)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	if _, err := mac.Write([]byte(message)); err != nil {
		return nil, err
	}
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-NONCE", nonce)
	req.Header.Set("ACCESS-SIGNATURE", signature)
	return req, nil
}

// SubmitOrder signs and submits an order. The returned response carries the
// venue's fill price when the order was accepted.
func (c *Client) SubmitOrder(ctx context.Context, order Order) (*OrderResponse, error) {
	jsonBody, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/orders", jsonBody)
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute order request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read order response (status %d): %w", resp.StatusCode, err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(bodyBytes, &orderResp); err != nil {
		return nil, fmt.Errorf("decode order response (status %d, body %s): %w", resp.StatusCode, string(bodyBytes), err)
	}

	if !orderResp.Success {
		if orderResp.Error != "" {
			if orderResp.ErrorDescription != "" {
				return &orderResp, fmt.Errorf("venue error on order: %s - %s", orderResp.Error, orderResp.ErrorDescription)
			}
			return &orderResp, fmt.Errorf("venue error on order: %s", orderResp.Error)
		}
		return &orderResp, fmt.Errorf("venue returned success=false, status %d", resp.StatusCode)
	}
	return &orderResp, nil
}

// CancelOrder cancels a previously submitted order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/orders/"+orderID, nil)
	if err != nil {
		return fmt.Errorf("create cancel request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute cancel request: %w", err)
	}
	defer resp.Body.Close()

	var cancelResp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cancelResp); err != nil {
		return fmt.Errorf("decode cancel response (status %d): %w", resp.StatusCode, err)
	}
	if !cancelResp.Success {
		if cancelResp.Error != "" {
			return fmt.Errorf("venue error on cancel: %s", cancelResp.Error)
		}
		return fmt.Errorf("venue returned success=false on cancel, status %d", resp.StatusCode)
	}
	return nil
}
