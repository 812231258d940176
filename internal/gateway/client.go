package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paywave/paywave/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept as the message.
const maxErrorBody = 512

type apiClient struct {
	provider string
	baseURL  string
	http     *http.Client
	metrics  *metrics.Metrics
}

func newAPIClient(provider, baseURL string, timeout time.Duration, hc *http.Client, m *metrics.Metrics) apiClient {
	if hc == nil {
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return apiClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		metrics:  m,
	}
}

// do sends body as JSON and decodes a 2xx response into out. Any failure is returned
// as *Error tagged with op.
func (c apiClient) do(ctx context.Context, op, method, path string, authorize func(*http.Request), body, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.GatewayRequest(c.provider, op, start, err) }()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return c.fail(op, 0, "", marshalErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return c.fail(op, 0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorize != nil {
		authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(op, 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(op, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(op, resp.StatusCode, upstreamMessage(raw), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.fail(op, resp.StatusCode, "malformed response", err)
	}
	return nil
}

func (c apiClient) fail(op string, status int, msg string, err error) *Error {
	return &Error{Provider: c.provider, Op: op, StatusCode: status, Message: msg, Err: err}
}

// upstreamMessage extracts the provider's message from an error body, falling back to
// the raw text.
func upstreamMessage(raw []byte) string {
	var envelope struct {
		Message         string `json:"message"`
		ResponseMessage string `json:"responseMessage"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.ResponseMessage != "" {
			return envelope.ResponseMessage
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		return http.StatusText(http.StatusBadGateway)
	}
	return text
}

// toMinorUnits converts naira to kobo.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(kobo int64) decimal.Decimal {
	return decimal.New(kobo, -2)
}

func requireField(provider, op, name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &Error{Provider: provider, Op: op, Message: fmt.Sprintf("response missing %s", name)}
	}
	return nil
}
