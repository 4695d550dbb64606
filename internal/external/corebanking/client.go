package corebanking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-origination/internal/domain"

	"go.uber.org/zap"
)

// Client submits bookings to the core banking system
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type bookingLine struct {
	AccountRef string `json:"account_ref"`
	Amount     string `json:"amount"`
	IsExternal bool   `json:"is_external"`
}

type bookingPayload struct {
	ApplicationID string        `json:"application_id"`
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Lines         []bookingLine `json:"lines"`
}

type bookingResponse struct {
	BookingReference string `json:"booking_reference"`
	Error            string `json:"error"`
}

// Book posts the allocation to {base}/bookings. A 4xx reply is a rejected
// booking; transport errors and 5xx replies are returned as errors.
func (c *Client) Book(ctx context.Context, req *domain.BookingRequest) (*domain.BookingResult, error) {
	payload := bookingPayload{
		ApplicationID: req.ApplicationID.String(),
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		Lines:         make([]bookingLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		payload.Lines = append(payload.Lines, bookingLine{
			AccountRef: l.AccountRef,
			Amount:     l.Amount.StringFixed(2),
			IsExternal: l.IsExternal,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("book application %s: %w", req.ApplicationID, err)
	}
	defer resp.Body.Close()

	var out bookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode booking response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("book application %s: core banking returned %d", req.ApplicationID, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("booking rejected with status %d", resp.StatusCode)
		}
		c.logger.Warn("booking rejected", zap.String("application_id", req.ApplicationID.String()), zap.String("error", msg))
		return &domain.BookingResult{Success: false, ErrorMessage: msg}, nil
	}

	if out.BookingReference == "" {
		return &domain.BookingResult{Success: false, ErrorMessage: "core banking returned no booking reference"}, nil
	}
	return &domain.BookingResult{Success: true, BookingReference: out.BookingReference}, nil
}
