package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

// FailureKind classifies a gateway send failure.
type FailureKind string

const (
	FailureInvalidNumber FailureKind = "invalid-number"
	FailureAuth          FailureKind = "auth"
	FailureRateLimited   FailureKind = "rate-limited"
	FailureProvider      FailureKind = "provider-5xx"
	FailureNetwork       FailureKind = "network"
)

// SendError is a classified gateway failure. Retryable failures are retried
// on later dispatch cycles; permanent ones are not. Auth failures are
// permanent but additionally escalated by the caller, since every send will
// fail until credentials are fixed.
type SendError struct {
	Kind      FailureKind
	Retryable bool
	Detail    string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sms gateway: %s: %s", e.Kind, e.Detail)
}

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Sender  string `json:"sender,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Client wraps the SMS provider API. It performs no retries of its own;
// retry policy lives in the dispatch runner so attempt counts stay auditable.
type Client struct {
	httpClient *resty.Client
	url        string
	sender     string
}

func NewClient(cfg environments.GatewayConfig) *Client {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-gateway-api-key", cfg.APIKey)

	return &Client{
		httpClient: client,
		url:        cfg.URL,
		sender:     cfg.SenderName,
	}
}

// Send delivers one SMS and returns the provider's message id, or a
// *SendError describing the failure.
func (c *Client) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	payload := sendRequest{
		To:      phoneNumber,
		Content: message,
		Sender:  c.sender,
	}

	var gatewayResp sendResponse

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&gatewayResp).
		Post(c.url)

	duration := time.Since(startTime)

	if err != nil {
		// Transport failures and timeouts are indistinguishable from the
		// caller's point of view: the message may or may not have left.
		return "", &SendError{
			Kind:      FailureNetwork,
			Retryable: true,
			Detail:    err.Error(),
		}
	}

	logger.Debugf("Gateway request completed in %v (status: %d)", duration, resp.StatusCode())

	if sendErr := classifyStatus(resp.StatusCode(), resp.String()); sendErr != nil {
		return "", sendErr
	}

	if gatewayResp.MessageID == "" {
		return "", &SendError{
			Kind:      FailureProvider,
			Retryable: true,
			Detail:    fmt.Sprintf("gateway accepted but returned no message id, body: %s", resp.String()),
		}
	}

	return gatewayResp.MessageID, nil
}

func classifyStatus(code int, body string) *SendError {
	switch {
	case code == http.StatusOK || code == http.StatusCreated || code == http.StatusAccepted:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &SendError{
			Kind:      FailureAuth,
			Retryable: false,
			Detail:    fmt.Sprintf("status %d: %s", code, body),
		}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return &SendError{
			Kind:      FailureInvalidNumber,
			Retryable: false,
			Detail:    fmt.Sprintf("status %d: %s", code, body),
		}
	case code == http.StatusTooManyRequests:
		return &SendError{
			Kind:      FailureRateLimited,
			Retryable: true,
			Detail:    fmt.Sprintf("status %d: %s", code, body),
		}
	case code >= 500:
		return &SendError{
			Kind:      FailureProvider,
			Retryable: true,
			Detail:    fmt.Sprintf("status %d: %s", code, body),
		}
	default:
		return &SendError{
			Kind:      FailureNetwork,
			Retryable: true,
			Detail:    fmt.Sprintf("unexpected status %d: %s", code, body),
		}
	}
}

func (c *Client) GetURL() string {
	return c.url
}
