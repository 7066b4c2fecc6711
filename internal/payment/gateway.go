// Package payment is the client side of the payment-gateway contract. The
// core treats the gateway as opaque and trusts only signature verification.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Txn is the gateway's checkout payload: what the client needs to complete
// payment. Amount is in minor units (paise).
type Txn struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Gateway interface {
	// CreateTransaction opens a gateway transaction for the order total.
	// orderRef is the order number; the gateway dedupes on it, so a retried
	// call for the same order returns the same transaction.
	CreateTransaction(ctx context.Context, amount decimal.Decimal, orderRef string) (*Txn, error)
	// VerifySignature checks the gateway callback: HMAC-SHA256 of
	// "<txnID>|<paymentID>" under the key secret, hex encoded.
	VerifySignature(txnID, paymentID, signature string) bool
}

type Client struct {
	HTTP      *http.Client
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
}

func NewClient(baseURL, keyID, keySecret, currency string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 5 * time.Second},
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		Currency:  currency,
	}
}

func (c *Client) CreateTransaction(ctx context.Context, amount decimal.Decimal, orderRef string) (*Txn, error) {
	payload, _ := json.Marshal(map[string]any{
		"amount":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency": c.Currency,
		"receipt":  orderRef,
	})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/orders", c.BaseURL), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway create: %s", res.Status)
	}
	var t Txn
	if err := json.NewDecoder(res.Body).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) VerifySignature(txnID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.KeySecret))
	mac.Write([]byte(txnID + "|" + paymentID))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
