package escrow

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

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/config"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
)

var errBaseURLRequired = errors.New("escrow processor base url is required")

type httpProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProcessor builds a Processor talking to the configured payment
// provider over its REST API.
func NewHTTPProcessor(ctx context.Context, cfg config.EscrowConfig, logg *logger.Logger) (Processor, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logg != nil {
		logg.Info(ctx, "escrow processor client initialized")
	}
	return &httpProcessor{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type captureRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type captureResponse struct {
	Reference string `json:"reference"`
}

type movementRequest struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
}

func (p *httpProcessor) Capture(ctx context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (string, error) {
	body := captureRequest{
		OrderID:     orderID.String(),
		AmountCents: amountCents,
		Currency:    string(currency),
	}
	var resp captureResponse
	if err := p.post(ctx, "/v1/captures", body, &resp); err != nil {
		return "", err
	}
	if resp.Reference == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "processor returned empty capture reference")
	}
	return resp.Reference, nil
}

func (p *httpProcessor) Release(ctx context.Context, processorRef string, amountCents int64) error {
	return p.post(ctx, "/v1/releases", movementRequest{Reference: processorRef, AmountCents: amountCents}, nil)
}

func (p *httpProcessor) Refund(ctx context.Context, processorRef string, amountCents int64) error {
	return p.post(ctx, "/v1/refunds", movementRequest{Reference: processorRef, AmountCents: amountCents}, nil)
}

func (p *httpProcessor) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode processor request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build processor request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call escrow processor")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("escrow processor %s returned %d: %s", path, resp.StatusCode, string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode processor response")
	}
	return nil
}
