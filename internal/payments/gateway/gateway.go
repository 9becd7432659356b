package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrCardDeclined is a final verdict from the processor.
	ErrCardDeclined = errors.New("card declined")
	// ErrProcessorUnavailable covers timeouts, transport faults and an open
	// circuit. The payment is recorded as failed; the saga compensates.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

// CardGateway is the external charge API.
type CardGateway interface {
	Charge(ctx context.Context, orderID uuid.UUID, amount int64) (transactionID string, err error)
}

type httpGateway struct {
	client *http.Client
	url    string
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewHTTPGateway(cfg config.Gateway, logger *zap.Logger) CardGateway {
	settings := gobreaker.Settings{
		Name: "card-gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &httpGateway{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

type chargeRequest struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  int64     `json:"amount"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Declined      bool   `json:"declined"`
	Reason        string `json:"reason,omitempty"`
}

func (g *httpGateway) Charge(ctx context.Context, orderID uuid.UUID, amount int64) (string, error) {
	resp, err := utils.ExecuteWithBreaker(g.cb, func() (*chargeResponse, error) {
		return g.doCharge(ctx, orderID, amount)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}

		return "", err
	}

	if resp.Declined {
		return "", fmt.Errorf("%w: %s", ErrCardDeclined, resp.Reason)
	}

	return resp.TransactionID, nil
}

func (g *httpGateway) doCharge(ctx context.Context, orderID uuid.UUID, amount int64) (*chargeResponse, error) {
	body, err := json.Marshal(chargeRequest{OrderID: orderID, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: processor returned %d", ErrProcessorUnavailable, httpResp.StatusCode)
	}

	var resp chargeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: bad processor response: %v", ErrProcessorUnavailable, err)
	}

	if httpResp.StatusCode == http.StatusPaymentRequired || httpResp.StatusCode == http.StatusUnprocessableEntity {
		resp.Declined = true
	}

	return &resp, nil
}
