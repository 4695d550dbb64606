package service

import (
	"context"
	"sync"
	"time"

	"github.com/segyhp/loan-origination/internal/domain"
	customError "github.com/segyhp/loan-origination/pkg/errors"

	"go.uber.org/zap"
)

// BookingDispatcher submits bookings to core banking off the request path.
// It never retries; the outcome is handed back as a booking result trigger.
type BookingDispatcher struct {
	gateway BookingGateway
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewBookingDispatcher(gateway BookingGateway, timeout time.Duration, logger *zap.Logger) *BookingDispatcher {
	return &BookingDispatcher{gateway: gateway, timeout: timeout, logger: logger}
}

// Dispatch books req in the background and calls onResult exactly once
func (d *BookingDispatcher) Dispatch(req *domain.BookingRequest, onResult func(ctx context.Context, result *domain.BookingResult)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		d.logger.Info("submitting booking",
			zap.String("application_id", req.ApplicationID.String()),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("amount", req.Amount.String()),
		)

		result, err := d.gateway.Book(ctx, req)
		if err != nil {
			result = &domain.BookingResult{
				Success:      false,
				ErrorMessage: customError.WrapExternalServiceFailure("core-banking", err).Error(),
			}
		}
		if result == nil {
			result = &domain.BookingResult{Success: false, ErrorMessage: "core banking returned no result"}
		}

		onResult(context.Background(), result)
	}()
}

// Wait blocks until every dispatched booking has reported back
func (d *BookingDispatcher) Wait() {
	d.wg.Wait()
}
