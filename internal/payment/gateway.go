package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrGateway wraps every payment-provider failure. It never coincides with
// an appointment mutation, so callers may always retry.
var ErrGateway = errors.New("payment gateway failure")

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Gateway is the minimal contract the reconciler needs: create an intent
// for an amount and read back its settlement status.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, correlationID string) (string, error)
	GetStatus(ctx context.Context, ref string) (Status, error)
}

// HTTPGateway talks to the payment provider's REST API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPGateway(baseURL, apiKey string, log *zap.Logger) *HTTPGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// WithBaseURL overrides the provider API URL (for testing).
func (g *HTTPGateway) WithBaseURL(baseURL string) *HTTPGateway {
	if baseURL != "" {
		g.baseURL = strings.TrimRight(baseURL, "/")
	}
	return g
}

type createIntentRequest struct {
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, correlationID string) (string, error) {
	body, err := json.Marshal(createIntentRequest{
		AmountMinor: amountMinor,
		Currency:    currency,
		Reference:   correlationID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal intent: %v", ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	var out intentResponse
	if err := g.do(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: intent response missing id", ErrGateway)
	}

	return out.ID, nil
}

func (g *HTTPGateway) GetStatus(ctx context.Context, ref string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/intents/"+ref, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	var out intentResponse
	if err := g.do(req, &out); err != nil {
		return "", err
	}

	switch Status(out.Status) {
	case StatusSucceeded, StatusPending, StatusFailed:
		return Status(out.Status), nil
	default:
		return "", fmt.Errorf("%w: unknown intent status %q", ErrGateway, out.Status)
	}
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.log.Warn("gateway returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("path", req.URL.Path))
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}

	return nil
}
