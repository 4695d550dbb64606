package corebanking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/loan-origination/internal/domain"
)

func bookingRequest() *domain.BookingRequest {
	id := uuid.New()
	return &domain.BookingRequest{
		ApplicationID:  id,
		IdempotencyKey: id.String() + "-1",
		Amount:         decimal.NewFromInt(10000),
		Currency:       "USD",
		Lines: []*domain.DisbursementLine{
			{ID: uuid.New(), AccountRef: "ACC-1", Amount: decimal.NewFromInt(6000)},
			{ID: uuid.New(), AccountRef: "EXT-9", Amount: decimal.NewFromInt(4000), IsExternal: true},
		},
	}
}

func TestClient_Book(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		success   bool
		reference string
		message   string
		wantErr   bool
	}{
		{name: "Success - booked", status: http.StatusCreated, body: `{"booking_reference":"CB-1"}`, success: true, reference: "CB-1"},
		{name: "Failure - rejected", status: http.StatusUnprocessableEntity, body: `{"error":"account closed"}`, message: "account closed"},
		{name: "Failure - no reference", status: http.StatusOK, body: `{}`, message: "core banking returned no booking reference"},
		{name: "Failure - server error", status: http.StatusBadGateway, body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bookingRequest()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/bookings", r.URL.Path)
				assert.Equal(t, req.IdempotencyKey, r.Header.Get("Idempotency-Key"))

				var payload bookingPayload
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "10000.00", payload.Amount)
				assert.Len(t, payload.Lines, 2)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := NewClient(server.URL, time.Second, zap.NewNop()).Book(context.Background(), req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
			assert.Equal(t, tt.reference, result.BookingReference)
			assert.Equal(t, tt.message, result.ErrorMessage)
		})
	}
}
