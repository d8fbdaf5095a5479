// Package kalshi implements the target-exchange clients: the REST client with
// RSA-PSS request signing, the open-market index feed, the order execution
// client, and the fill stream.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// Client is the signed REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	pathPrefix string // path component of baseURL, included in the signed message
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a Kalshi REST client. baseURL is the API root, e.g.
// "https://api.elections.kalshi.com/trade-api/v2". Requests that hit
// authenticated endpoints fail until SetRSAPrivateKey is called.
func NewClient(baseURL, apiKeyID string) *Client {
	prefix := ""
	if u, err := url.Parse(baseURL); err == nil {
		prefix = u.Path
	}
	return &Client{
		baseURL:    baseURL,
		pathPrefix: prefix,
		apiKeyID:   apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads the PEM-encoded RSA private key used to sign
// requests. PKCS8 and PKCS1 encodings are both accepted.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarkets returns one page of markets plus the cursor for the next page.
// An empty returned cursor means the listing is exhausted.
func (c *Client) GetMarkets(ctx context.Context, status, cursor string, limit int) ([]Market, string, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// GetMarket returns a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market Market `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	return resp.Market, nil
}

// GetBalance returns the account balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("kalshi: decode balance: %w", err)
	}
	return resp.Balance, nil
}

// CreateOrder submits an order and returns the exchange's view of it.
func (c *Client) CreateOrder(ctx context.Context, order Order) (OrderState, error) {
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return OrderState{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp struct {
		Order OrderState `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderState{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	return resp.Order, nil
}

// doSignedRequest builds, signs, sends, and reads one HTTP request against
// the Kalshi API. Network-level failures classify as transient.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.signRequest(req.Header, method, path); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %v: %w", err, domain.ErrExecutionTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrExecutionTransient)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds the RSA authentication headers. Kalshi signs
// timestamp + method + path (query string excluded) with RSA-PSS-SHA256.
func (c *Client) signRequest(h http.Header, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured: %w", domain.ErrSigningFailed)
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + c.pathPrefix + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("kalshi: RSA sign: %v: %w", err, domain.ErrSigningFailed)
	}

	h.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// APIError is a non-2xx response from the Kalshi API, classified into the
// retryable / non-retryable sentinels the dispatcher keys off.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi: HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Unwrap classifies the error. Server-side and throttling failures may heal
// on retry; everything else will not.
func (e *APIError) Unwrap() []error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return []error{domain.ErrRateLimited, domain.ErrExecutionTransient}
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500:
		return []error{domain.ErrExecutionTransient}
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return []error{domain.ErrUnauthorized, domain.ErrExecutionPermanent}
	case e.StatusCode == http.StatusNotFound:
		return []error{domain.ErrNotFound, domain.ErrExecutionPermanent}
	case e.StatusCode == http.StatusBadRequest:
		return []error{domain.ErrInvalidOrder, domain.ErrExecutionPermanent}
	default:
		return []error{domain.ErrExecutionPermanent}
	}
}

func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: statusCode}
	var wire struct {
		Error ErrorBody `json:"error"`
		ErrorBody
	}
	if json.Unmarshal(body, &wire) == nil {
		apiErr.Code = wire.Code
		apiErr.Message = wire.Message
		if wire.Error.Code != "" || wire.Error.Message != "" {
			apiErr.Code = wire.Error.Code
			apiErr.Message = wire.Error.Message
		}
	}
	return apiErr
}
