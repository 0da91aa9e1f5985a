package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/agent-arena-bot/internal/config"
)

func testClient(serverURL string) *Client {
	return NewClient(config.VenueConfig{
		BaseURL:   serverURL,
		APIKey:    "test_api_key",
		APISecret: "test_secret_key",
	})
}

func TestSubmitOrder_SignsRequest(t *testing.T) {
	var capturedBody string
	var capturedHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyBytes, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		capturedBody = string(bodyBytes)
		capturedHeaders = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OrderResponse{
			Success:   true,
			OrderID:   "ord-1",
			FillPrice: decimal.NewFromFloat(0.41),
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.SubmitOrder(context.Background(), Order{
		MarketID: "mkt-1",
		Action:   "BUY",
		Side:     "YES",
		SizeUSD:  decimal.NewFromInt(50),
		MaxPrice: decimal.NewFromFloat(0.45),
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", resp.OrderID)

	// The submitted body must round-trip as JSON with the order fields.
	var sent Order
	require.NoError(t, json.Unmarshal([]byte(capturedBody), &sent))
	assert.Equal(t, "mkt-1", sent.MarketID)
	assert.Equal(t, "BUY", sent.Action)

	// The signature must cover nonce + URL + body with the shared secret.
	nonce := capturedHeaders.Get("ACCESS-NONCE")
	require.NotEmpty(t, nonce)
	assert.Equal(t, "test_api_key", capturedHeaders.Get("ACCESS-KEY"))

	mac := hmac.New(sha256.New, []byte("test_secret_key"))
	mac.Write([]byte(nonce + server.URL + "/api/orders" + capturedBody))
	expected := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, capturedHeaders.Get("ACCESS-SIGNATURE"))
}

func TestSubmitOrder_VenueError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OrderResponse{
			Success:          false,
			Error:            "insufficient_funds",
			ErrorDescription: "balance too low for order",
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	resp, err := client.SubmitOrder(context.Background(), Order{MarketID: "mkt-1", Action: "BUY", Side: "YES"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient_funds")
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
}

func TestSubmitOrder_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway error</html>")
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.SubmitOrder(context.Background(), Order{MarketID: "mkt-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode order response")
}

func TestCancelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/orders/ord-9", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	client := testClient(server.URL)
	require.NoError(t, client.CancelOrder(context.Background(), "ord-9"))
}
