package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultGatewayTimeout = 10 * time.Second

type relayRequest struct {
	Token    string            `json:"token"`
	Platform string            `json:"platform"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

type relayResponse struct {
	Delivered    *bool  `json:"delivered"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// HTTPGateway posts push messages to an HTTP push relay.
type HTTPGateway struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPGateway(endpoint, apiKey string) (*HTTPGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if key := strings.TrimSpace(apiKey); key != "" {
		client.SetAuthToken(key)
	}

	return NewHTTPGatewayWithClient(endpoint, client)
}

func NewHTTPGatewayWithClient(endpoint string, client *resty.Client) (*HTTPGateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPGateway{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

// Send delivers msg. Title and body are truncated to the relay's hard limits
// before the call so an oversized payload is never the reason for a rejection.
func (g *HTTPGateway) Send(ctx context.Context, msg Message) (*Response, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("push gateway is not initialized")
	}
	if strings.TrimSpace(msg.Token) == "" {
		return nil, &ProviderError{Message: "device token is required", InvalidToken: true}
	}

	reqBody := relayRequest{
		Token:    msg.Token,
		Platform: msg.Platform.String(),
		Title:    truncateRunes(msg.Title, MaxPushTitle),
		Body:     truncateRunes(msg.Body, MaxPushBody),
		Data:     msg.Data,
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(g.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "push relay request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "push relay returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	relay := decodeRelayResponse(response.Body())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		if relay.Delivered == nil || *relay.Delivered {
			return &Response{
				StatusCode: statusCode,
				MessageID:  relayMessageID(response),
			}, nil
		}
		invalid := IsInvalidTokenCode(relay.ErrorCode)
		return nil, &ProviderError{
			StatusCode:   statusCode,
			Code:         relay.ErrorCode,
			Message:      relay.ErrorMessage,
			Transient:    !invalid,
			InvalidToken: invalid,
		}
	}

	invalid := isInvalidTokenStatus(statusCode) || IsInvalidTokenCode(relay.ErrorCode)
	message := relay.ErrorMessage
	if message == "" {
		message = fmt.Sprintf("push relay returned status %d", statusCode)
	}
	return nil, &ProviderError{
		StatusCode:   statusCode,
		Code:         relay.ErrorCode,
		Message:      message,
		Transient:    !invalid,
		InvalidToken: invalid,
	}
}

func isInvalidTokenStatus(statusCode int) bool {
	return statusCode == http.StatusNotFound || statusCode == http.StatusGone
}

// decodeRelayResponse tolerates empty or non-JSON bodies.
func decodeRelayResponse(body []byte) relayResponse {
	var out relayResponse
	if len(body) == 0 {
		return out
	}
	_ = json.Unmarshal(body, &out)
	out.ErrorCode = strings.TrimSpace(out.ErrorCode)
	return out
}

func relayMessageID(response *resty.Response) string {
	for _, key := range []string{"X-Message-ID", "X-Request-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}
	return ""
}
