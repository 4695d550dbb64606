package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	customError "github.com/segyhp/loan-origination/pkg/errors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: customError.WrapNotFound("application", "a1"), wantStatus: http.StatusNotFound, wantCode: customError.ErrCodeNotFound},
		{name: "validation", err: customError.WrapValidation("bad"), wantStatus: http.StatusBadRequest, wantCode: customError.ErrCodeValidation},
		{name: "unauthorized", err: customError.WrapUnauthorized("u", "DRAFT", "SUBMITTED"), wantStatus: http.StatusForbidden, wantCode: customError.ErrCodeUnauthorized},
		{name: "self approval", err: customError.WrapSelfApprovalForbidden("a1"), wantStatus: http.StatusForbidden, wantCode: customError.ErrCodeSelfApprovalForbidden},
		{name: "already claimed", err: customError.WrapAlreadyClaimed("t1"), wantStatus: http.StatusConflict, wantCode: customError.ErrCodeAlreadyClaimed},
		{name: "conditions pending", err: customError.WrapConditionsPending("o1", 2), wantStatus: http.StatusUnprocessableEntity, wantCode: customError.ErrCodeConditionsPending},
		{name: "allocation mismatch", err: customError.WrapAllocationMismatch("off by 0.02"), wantStatus: http.StatusUnprocessableEntity, wantCode: customError.ErrCodeAllocationMismatch},
		{name: "external", err: customError.WrapExternalServiceFailure("party-directory", errors.New("timeout")), wantStatus: http.StatusBadGateway, wantCode: customError.ErrCodeExternalServiceFailure},
		{name: "lock", err: customError.WrapLockError("a1", errors.New("timeout")), wantStatus: http.StatusServiceUnavailable, wantCode: customError.ErrCodeLockError},
		{name: "database", err: customError.WrapDatabaseError(errors.New("pq: broken")), wantStatus: http.StatusInternalServerError, wantCode: customError.ErrCodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestFromError_CarriesValidTransitions(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, customError.WrapInvalidTransition("DRAFT", "APPROVED", []string{"SUBMITTED", "CANCELLED"}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "DRAFT", body.CurrentStatus)
	assert.Equal(t, []string{"SUBMITTED", "CANCELLED"}, body.ValidTransitions)
}

func TestFromError_HidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.NotContains(t, body.Error, "password")
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "a1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, map[string]interface{}{"id": "a1"}, body.Data)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := NewLoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil)
	req.Header.Set("X-Actor-ID", "officer-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "officer-1", fields["actor_id"])
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
