// Package alipay is a small Alipay OpenAPI client covering face-to-face
// precreate (QR code) payments and asynchronous notification verification.
package alipay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGatewayURL = "https://openapi.alipay.com/gateway.do"
	SandboxGatewayURL = "https://openapi-sandbox.dl.alipaydev.com/gateway.do"

	methodPreCreate = "alipay.trade.precreate"
	codeSuccess     = "10000"
)

// Trade statuses reported in asynchronous notifications.
const (
	TradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	TradeStatusClosed       = "TRADE_CLOSED"
	TradeStatusSuccess      = "TRADE_SUCCESS"
	TradeStatusFinished     = "TRADE_FINISHED"
)

// Alipay timestamps are always Beijing time.
var beijing = time.FixedZone("CST", 8*3600)

// Config is the immutable credential set a Client is built from.
type Config struct {
	AppID      string
	PrivateKey string
	PublicKey  string
	GatewayURL string
	NotifyURL  string
	Sandbox    bool
}

// Gateway returns the configured gateway, falling back to the default for
// the mode.
func (c Config) Gateway() string {
	if strings.TrimSpace(c.GatewayURL) != "" {
		return strings.TrimSpace(c.GatewayURL)
	}
	if c.Sandbox {
		return SandboxGatewayURL
	}
	return DefaultGatewayURL
}

func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AppID) == "" {
		missing = append(missing, "app_id")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "private_key")
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		missing = append(missing, "alipay_public_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("alipay: incomplete config, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Client struct {
	cfg        Config
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient parses the keys once. The returned client is safe for concurrent
// use and never mutated afterwards.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(cfg.PublicKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		privateKey: priv,
		publicKey:  pub,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) AppID() string     { return c.cfg.AppID }
func (c *Client) IsSandbox() bool   { return c.cfg.Sandbox }
func (c *Client) NotifyURL() string { return c.cfg.NotifyURL }

type PreCreateRequest struct {
	OutTradeNo  string `json:"out_trade_no"`
	TotalAmount string `json:"total_amount"`
	Subject     string `json:"subject"`
	Body        string `json:"body,omitempty"`
	// TimeoutExpress like "30m"; empty keeps the gateway default.
	TimeoutExpress string `json:"timeout_express,omitempty"`
}

type PreCreateResponse struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	SubCode    string `json:"sub_code"`
	SubMsg     string `json:"sub_msg"`
	OutTradeNo string `json:"out_trade_no"`
	QRCode     string `json:"qr_code"`
}

// APIError is a business failure reported by the gateway.
type APIError struct {
	Code    string
	Msg     string
	SubCode string
	SubMsg  string
}

func (e *APIError) Error() string {
	if e.SubCode != "" {
		return fmt.Sprintf("alipay: %s %s (%s: %s)", e.Code, e.Msg, e.SubCode, e.SubMsg)
	}
	return fmt.Sprintf("alipay: %s %s", e.Code, e.Msg)
}

// PreCreate asks the gateway for a scannable QR code for one trade.
func (c *Client) PreCreate(ctx context.Context, req PreCreateRequest) (*PreCreateResponse, error) {
	if req.OutTradeNo == "" || req.TotalAmount == "" || req.Subject == "" {
		return nil, errors.New("alipay: out_trade_no, total_amount and subject are required")
	}
	biz, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	form, err := c.signedParams(methodPreCreate, string(biz))
	if err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, form, "alipay_trade_precreate_response")
	if err != nil {
		return nil, err
	}

	var resp PreCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("alipay: decode precreate response: %w", err)
	}
	if resp.Code != codeSuccess {
		return nil, &APIError{Code: resp.Code, Msg: resp.Msg, SubCode: resp.SubCode, SubMsg: resp.SubMsg}
	}
	if resp.QRCode == "" {
		return nil, errors.New("alipay: precreate response has no qr_code")
	}
	return &resp, nil
}

// VerifyNotification checks the RSA2 signature of an asynchronous
// notification. sign and sign_type are excluded from the signed content.
func (c *Client) VerifyNotification(values url.Values) error {
	sig := values.Get("sign")
	if sig == "" {
		return ErrInvalidSignature
	}
	if st := values.Get("sign_type"); st != "" && !strings.EqualFold(st, "RSA2") {
		return fmt.Errorf("alipay: unsupported sign_type %q", st)
	}
	return VerifyRSA2(SignContent(values, true), sig, c.publicKey)
}

func (c *Client) signedParams(method, bizContent string) (url.Values, error) {
	v := url.Values{}
	v.Set("app_id", c.cfg.AppID)
	v.Set("method", method)
	v.Set("format", "JSON")
	v.Set("charset", "utf-8")
	v.Set("sign_type", "RSA2")
	v.Set("timestamp", c.now().In(beijing).Format("2006-01-02 15:04:05"))
	v.Set("version", "1.0")
	if c.cfg.NotifyURL != "" {
		v.Set("notify_url", c.cfg.NotifyURL)
	}
	v.Set("biz_content", bizContent)

	sig, err := SignRSA2(SignContent(v, false), c.privateKey)
	if err != nil {
		return nil, err
	}
	v.Set("sign", sig)
	return v, nil
}

// call posts the form and returns the raw JSON node named responseKey after
// checking the gateway's response signature over exactly those bytes.
func (c *Client) call(ctx context.Context, form url.Values, responseKey string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Gateway(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("alipay: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("alipay: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("alipay: gateway returned status %d", resp.StatusCode)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("alipay: decode response: %w", err)
	}

	raw, ok := envelope[responseKey]
	isError := false
	if !ok {
		raw, isError = envelope["error_response"]
		if !isError {
			return nil, fmt.Errorf("alipay: response is missing %s", responseKey)
		}
	}

	var sig string
	if s, ok := envelope["sign"]; ok {
		_ = json.Unmarshal(s, &sig)
	}
	// Error responses are unsigned when the request itself was rejected.
	if sig == "" && !isError {
		return nil, errors.New("alipay: unsigned response")
	}
	if sig != "" {
		if err := VerifyRSA2(string(raw), sig, c.publicKey); err != nil {
			return nil, fmt.Errorf("alipay: response signature mismatch: %w", err)
		}
	}
	return raw, nil
}
