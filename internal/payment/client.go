// Package payment предоставляет клиент платёжного шлюза: подпись ссылок на оплату,
// проверку обратных вызовов и опрос статуса платежей.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Статусы платежа на стороне шлюза.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
}

// Status описывает ответ шлюза по одному заказу.
type Status struct {
	Order          string `json:"order"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	TransactionRef string `json:"transactionRef,omitempty"`
}

// NewClient создаёт HTTP-клиент шлюза по указанному адресу и секрету подписи.
func NewClient(baseURL string, signer *Signer) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		signer: signer,
	}
}

// Configured сообщает, задан ли адрес шлюза.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// PaymentURL строит подписанную ссылку на страницу оплаты заказа.
func (c *Client) PaymentURL(orderNumber string, amountCents int64, transactionRef, returnURL string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("payment gateway not configured")
	}

	params := url.Values{}
	params.Set("orderNumber", orderNumber)
	params.Set("amount", strconv.FormatInt(amountCents, 10))
	params.Set("transactionRef", transactionRef)
	if returnURL != "" {
		params.Set("returnUrl", returnURL)
	}

	return c.baseURL + "/pay?" + c.signer.Sign(params).Encode(), nil
}

// GetPaymentStatus запрашивает у шлюза статус оплаты заказа.
// Возвращает код ответа и рекомендуемую паузу при 429.
func (c *Client) GetPaymentStatus(ctx context.Context, number string) (*Status, int, time.Duration, error) {
	if !c.Configured() {
		return nil, 0, 0, fmt.Errorf("payment gateway not configured")
	}

	endpoint := fmt.Sprintf("%s/api/payments/%s", c.baseURL, url.PathEscape(number))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Status
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}
