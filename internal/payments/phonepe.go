package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	PhonePeName = "PHONEPE"

	phonePeProdURL = "https://api.phonepe.com/apis/hermes"
	phonePeUATURL  = "https://api-preprod.phonepe.com/apis/hermes"

	payPath    = "/pg/v1/pay"
	refundPath = "/pg/v1/refund"
	statusPath = "/pg/v1/status"
)

type PhonePeConfig struct {
	MerchantID    string
	APIKey        string // signing secret
	ClientVersion string
	Production    bool
	BaseURL       string // overrides the environment URL, used against fakes
	// CallbackBaseURL is the externally reachable prefix of the phonepe routes;
	// redirect, webhook and refund webhook URLs hang off it.
	CallbackBaseURL string
	Timeout         time.Duration
}

type PhonePeClient struct {
	cfg        PhonePeConfig
	baseURL    string
	httpClient *http.Client
}

var _ Gateway = (*PhonePeClient)(nil)

func NewPhonePeClient(cfg PhonePeConfig) (*PhonePeClient, error) {
	if cfg.MerchantID == "" || cfg.APIKey == "" {
		return nil, errors.New("phonepe configuration missing: merchant id and api key are required")
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	base := phonePeUATURL
	if cfg.Production {
		base = phonePeProdURL
	}
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	return &PhonePeClient{
		cfg:        cfg,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *PhonePeClient) Name() string { return PhonePeName }

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type refundPayload struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	Amount                int64  `json:"amount"`
	CallbackURL           string `json:"callbackUrl"`
}

// envelope is the response shape shared by pay, status, refund and the
// decoded webhook body.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
		InstrumentResponse    *struct {
			RedirectInfo *struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (e *envelope) state() State {
	if e.Data != nil && e.Data.State != "" {
		return normalizeState(e.Data.State)
	}
	return stateFromCode(e.Code)
}

func (e *envelope) result(raw []byte) Result {
	r := Result{
		Success:      e.Success,
		State:        e.state(),
		Code:         e.Code,
		ErrorMessage: e.Message,
		Raw:          rawJSON(raw),
	}
	if e.Success {
		r.ErrorMessage = ""
	}
	if e.Data != nil {
		r.GatewayTransactionID = e.Data.TransactionID
		if ir := e.Data.InstrumentResponse; ir != nil && ir.RedirectInfo != nil {
			r.PaymentURL = ir.RedirectInfo.URL
		}
	}
	return r
}

// normalizeState maps data.state. Anything unlisted is UNKNOWN, never COMPLETED.
func normalizeState(s string) State {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COMPLETED":
		return StateCompleted
	case "FAILED":
		return StateFailed
	case "DECLINED":
		return StateDeclined
	case "PENDING":
		return StatePending
	}
	return StateUnknown
}

func stateFromCode(code string) State {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAYMENT_SUCCESS":
		return StateCompleted
	case "PAYMENT_ERROR":
		return StateFailed
	case "PAYMENT_DECLINED":
		return StateDeclined
	case "PAYMENT_PENDING":
		return StatePending
	}
	return StateUnknown
}

func (p *PhonePeClient) callbackURL(suffix string) string {
	return strings.TrimRight(p.cfg.CallbackBaseURL, "/") + suffix
}

// Initiate creates a pay-page session. Once sent the call is not cancelled by
// the caller's context; it runs to completion or to the client timeout.
func (p *PhonePeClient) Initiate(ctx context.Context, req InitiateRequest) (Result, error) {
	payload := payPayload{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        req.UserID,
		Amount:                ToMinorUnits(req.Amount),
		RedirectURL:           p.callbackURL("/success?orderId=" + req.TransactionID),
		RedirectMode:          http.MethodPost,
		CallbackURL:           p.callbackURL("/webhook"),
		MobileNumber:          req.Phone,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	env, raw, err := p.postSigned(ctx, "initiate", payPath, payload)
	if err != nil {
		return Result{}, err
	}
	res := env.result(raw)
	if !env.Success {
		return res, rejected("initiate", env, raw)
	}
	if res.PaymentURL == "" {
		return res, &GatewayError{Kind: Rejected, Op: "initiate", Code: env.Code, Detail: "response carries no redirect url"}
	}
	res.State = StatePending
	return res, nil
}

// CheckStatus asks the gateway for the current state of transactionID. A
// decodable answer is returned as a Result even when success is false; the
// state carries the outcome.
func (p *PhonePeClient) CheckStatus(ctx context.Context, transactionID string) (Result, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", statusPath, p.cfg.MerchantID, transactionID)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return Result{}, &GatewayError{Kind: Rejected, Op: "status", Detail: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum(endpoint, p.cfg.APIKey, p.cfg.ClientVersion))
	httpReq.Header.Set("X-MERCHANT-ID", p.cfg.MerchantID)
	httpReq.Header.Set("accept", "application/json")

	env, raw, status, err := p.do(httpReq, "status")
	if err != nil {
		return Result{}, err
	}
	res := env.result(raw)
	if status >= 400 && res.State == StateUnknown {
		return res, rejected("status", env, raw)
	}
	return res, nil
}

func (p *PhonePeClient) InitiateRefund(ctx context.Context, req RefundRequest) (Result, error) {
	payload := refundPayload{
		MerchantID:            p.cfg.MerchantID,
		MerchantTransactionID: req.RefundTransactionID,
		OriginalTransactionID: req.OriginalTransactionID,
		Amount:                ToMinorUnits(req.Amount),
		CallbackURL:           p.callbackURL("/refund/webhook"),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	env, raw, err := p.postSigned(ctx, "refund", refundPath, payload)
	if err != nil {
		return Result{}, err
	}
	res := env.result(raw)
	if !env.Success {
		return res, rejected("refund", env, raw)
	}
	if res.State == StateUnknown {
		res.State = StatePending
	}
	return res, nil
}

// VerifyWebhookSignature checks X-VERIFY against sha256(response + secret),
// where response is the base64 field of the JSON body exactly as received.
func (p *PhonePeClient) VerifyWebhookSignature(body []byte, signature string) bool {
	response, ok := webhookResponseField(body)
	if !ok {
		return false
	}
	return VerifyChecksum([]byte(response), signature, p.cfg.APIKey, p.cfg.ClientVersion)
}

func (p *PhonePeClient) DecodeCallback(body []byte) (Callback, error) {
	response, ok := webhookResponseField(body)
	if !ok {
		return Callback{}, errors.New("webhook body has no response field")
	}
	decoded, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return Callback{}, fmt.Errorf("decode webhook response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return Callback{}, fmt.Errorf("parse webhook response: %w", err)
	}
	if env.Data == nil || env.Data.MerchantTransactionID == "" {
		return Callback{}, errors.New("webhook response has no merchantTransactionId")
	}
	return Callback{
		TransactionID:        env.Data.MerchantTransactionID,
		GatewayTransactionID: env.Data.TransactionID,
		Success:              env.Success,
		State:                env.state(),
		Code:                 env.Code,
		Message:              env.Message,
		Raw:                  rawJSON(decoded),
	}, nil
}

// webhookResponseField extracts the exact "response" key; json field matching
// is case-insensitive so the struct decoder cannot be used here.
func webhookResponseField(body []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	raw, ok := fields["response"]
	if !ok {
		return "", false
	}
	var response string
	if err := json.Unmarshal(raw, &response); err != nil || response == "" {
		return "", false
	}
	return response, true
}

func (p *PhonePeClient) postSigned(ctx context.Context, op, path string, payload any) (*envelope, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, &GatewayError{Kind: Rejected, Op: op, Detail: err.Error(), Err: err}
	}
	encoded := base64.StdEncoding.EncodeToString(b)
	body, _ := json.Marshal(map[string]string{"request": encoded})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &GatewayError{Kind: Rejected, Op: op, Detail: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum(encoded+path, p.cfg.APIKey, p.cfg.ClientVersion))
	httpReq.Header.Set("accept", "application/json")

	env, raw, _, err := p.do(httpReq, op)
	return env, raw, err
}

// do sends req and classifies every failure: transport errors and 5xx are
// ambiguous, an undecodable 4xx is a rejection.
func (p *PhonePeClient) do(req *http.Request, op string) (*envelope, []byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, 0, transportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, resp.StatusCode, transportError(op, err)
	}

	if resp.StatusCode >= 500 {
		return nil, raw, resp.StatusCode, &GatewayError{
			Kind:   Network,
			Op:     op,
			Detail: fmt.Sprintf("http=%d body=%s", resp.StatusCode, truncate(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		kind := Network
		if resp.StatusCode >= 400 {
			kind = Rejected
		}
		return nil, raw, resp.StatusCode, &GatewayError{
			Kind:   kind,
			Op:     op,
			Detail: fmt.Sprintf("decode http=%d body=%s", resp.StatusCode, truncate(raw)),
			Err:    err,
		}
	}
	return &env, raw, resp.StatusCode, nil
}

func transportError(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &GatewayError{Kind: Timeout, Op: op, Detail: err.Error(), Err: err}
	}
	return &GatewayError{Kind: Network, Op: op, Detail: err.Error(), Err: err}
}

func rejected(op string, env *envelope, raw []byte) error {
	detail := env.Message
	if detail == "" {
		detail = truncate(raw)
	}
	return &GatewayError{Kind: Rejected, Op: op, Code: env.Code, Detail: detail}
}

func rawJSON(b []byte) json.RawMessage {
	if !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

func truncate(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
