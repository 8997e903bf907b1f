package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/carwash-scan-terminal/internal/config"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/metrics"
	"github.com/fairyhunter13/carwash-scan-terminal/internal/model"
)

// Client talks to the loyalty platform's merchant API.
// Calls are throttled by a token bucket shared by all terminals of the process.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a Client from the backend configuration.
func NewClient(cfg config.BackendConfig) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
	}
}

type scanQRRequest struct {
	CustomerQRCode string `json:"customerQRCode"`
	MerchantID     string `json:"merchantId"`
	Amount         int    `json:"amount"`
}

type rewardQRRequest struct {
	RewardQRCode string `json:"rewardQRCode"`
	MerchantID   string `json:"merchantId"`
}

type recordWashRequest struct {
	CustomerID     string      `json:"customerId"`
	CustomerQRCode string      `json:"customerQRCode"`
	MerchantID     string      `json:"merchantId"`
	WashType       string      `json:"washType"`
	Price          json.Number `json:"price"`
	CarPlateNumber string      `json:"carPlateNumber"`
	Notes          string      `json:"notes"`
}

// ResolveCustomerByCode resolves a customer QR code to the customer's loyalty
// card at merchantID.
// Returns:
//   - *NotLinkedError if the customer exists but is not linked to the merchant
//   - *APIError for any other platform rejection
func (c *Client) ResolveCustomerByCode(ctx context.Context, merchantID, code string) (*model.CustomerRecord, error) {
	path := "/Merchant/" + url.PathEscape(merchantID) + "/scan-qr"
	data, err := c.call(ctx, "resolve_customer", fiber.MethodPost, path, scanQRRequest{
		CustomerQRCode: code,
		MerchantID:     merchantID,
	}, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if notLinked := notLinkedFrom(apiErr); notLinked != nil {
				return nil, notLinked
			}
		}
		return nil, err
	}

	if isEmptyPayload(data) {
		return nil, fmt.Errorf("resolve customer: empty payload")
	}
	var w wireCustomer
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	return w.record(), nil
}

// ResolveRewardByCode validates a reward QR code for redemption at merchantID.
func (c *Client) ResolveRewardByCode(ctx context.Context, merchantID, code string) (*model.RewardRecord, error) {
	path := "/Merchant/" + url.PathEscape(merchantID) + "/validate-reward"
	data, err := c.call(ctx, "resolve_reward", fiber.MethodPost, path, rewardQRRequest{
		RewardQRCode: code,
		MerchantID:   merchantID,
	}, false)
	if err != nil {
		return nil, err
	}

	if isEmptyPayload(data) {
		return nil, fmt.Errorf("resolve reward: empty payload")
	}
	var w wireReward
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode reward: %w", err)
	}
	return w.record(), nil
}

// SubmitWash records a wash transaction for a customer.
func (c *Client) SubmitWash(ctx context.Context, rec model.WashRecord) error {
	path := "/Merchant/" + url.PathEscape(rec.MerchantID) + "/record-wash"
	_, err := c.call(ctx, "submit_wash", fiber.MethodPost, path, recordWashRequest{
		CustomerID:     rec.CustomerID,
		CustomerQRCode: rec.CustomerCode,
		MerchantID:     rec.MerchantID,
		WashType:       rec.ServiceName,
		Price:          json.Number(rec.Price.String()),
		CarPlateNumber: rec.CarPlateNumber,
		Notes:          rec.Notes,
	}, true)
	return err
}

// RedeemReward marks the reward identified by code as claimed.
func (c *Client) RedeemReward(ctx context.Context, merchantID, code string) error {
	path := "/Merchant/" + url.PathEscape(merchantID) + "/redeem-reward"
	_, err := c.call(ctx, "redeem_reward", fiber.MethodPost, path, rewardQRRequest{
		RewardQRCode: code,
		MerchantID:   merchantID,
	}, true)
	return err
}

// MerchantIDByUserID resolves the merchant owned by a platform user.
func (c *Client) MerchantIDByUserID(ctx context.Context, userID string) (string, error) {
	data, err := c.call(ctx, "merchant_by_user", fiber.MethodGet, "/Merchant/by-user/"+url.PathEscape(userID), nil, false)
	if err != nil {
		return "", err
	}

	var id flexString
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("decode merchant id: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("merchant id for user %s is empty", userID)
	}
	return string(id), nil
}

// Ping checks that the platform is reachable.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, "ping", fiber.MethodGet, "/health", nil, false)
	if err != nil {
		return err
	}
	if status >= http.StatusInternalServerError {
		return &APIError{StatusCode: status}
	}
	return nil
}

// call performs a request and unwraps the success/message/data envelope.
func (c *Client) call(ctx context.Context, op, method, path string, body any, idempotent bool) (json.RawMessage, error) {
	status, respBody, err := c.do(ctx, op, method, path, body, idempotent)
	if err != nil {
		return nil, err
	}

	var env model.APIResponse[json.RawMessage]
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil {
			if isSuccessStatus(status) {
				return nil, fmt.Errorf("%s: decode response: %w", op, err)
			}
			env = model.APIResponse[json.RawMessage]{}
		}
	}

	if !isSuccessStatus(status) || !env.Success {
		apiErr := &APIError{
			StatusCode: status,
			Code:       env.ErrorCode,
			Message:    env.Message,
			Errors:     env.Errors,
			Data:       env.Data,
		}
		logAPIError(op, apiErr)
		return nil, apiErr
	}

	return env.Data, nil
}

// do sends one request through the rate limiter and returns the raw response.
func (c *Client) do(ctx context.Context, op, method, path string, body any, idempotent bool) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}

	timeout, err := c.callTimeout(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	var a *fiber.Agent
	switch method {
	case fiber.MethodGet:
		a = fiber.Get(c.baseURL + path)
	default:
		a = fiber.Post(c.baseURL + path)
	}

	a.Timeout(timeout).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Set(fiber.HeaderXRequestID, uuid.NewString())
	if c.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if idempotent {
		a.Set("Idempotency-Key", uuid.NewString())
	}
	if payload != nil {
		a.ContentType(fiber.MIMEApplicationJSON).Body(payload)
	}

	start := time.Now()
	status, respBody, errs := a.Bytes()
	elapsed := time.Since(start).Seconds()

	if len(errs) > 0 {
		metrics.RecordBackendCall(op, "failure", elapsed)
		log.Warn().
			Errs("errors", errs).
			Str("operation", op).
			Str("path", path).
			Msg("backend call failed")
		return 0, nil, fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	result := "success"
	if !isSuccessStatus(status) {
		result = "failure"
	}
	metrics.RecordBackendCall(op, result, elapsed)

	return status, respBody, nil
}

// callTimeout bounds the per-call timeout by the context deadline, since the
// fasthttp client does not observe context cancellation.
func (c *Client) callTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, nil
}

func logAPIError(op string, apiErr *APIError) {
	event := log.Warn().
		Int("status", apiErr.StatusCode).
		Str("operation", op).
		Str("error_code", apiErr.Code)

	switch {
	case apiErr.Unauthorized():
		event.Msg("backend rejected terminal credentials")
	case apiErr.Temporary():
		event.Msg("backend unavailable")
	default:
		event.Str("message", apiErr.Message).Msg("backend rejected request")
	}
}

func isSuccessStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func isEmptyPayload(data json.RawMessage) bool {
	s := strings.TrimSpace(string(data))
	return s == "" || s == "null"
}
