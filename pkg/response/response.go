package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	customError "github.com/segyhp/loan-origination/pkg/errors"

	"go.uber.org/zap"
)

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Success          bool      `json:"success"`
	Code             string    `json:"code,omitempty"`
	Error            string    `json:"error"`
	Message          string    `json:"message,omitempty"`
	CurrentStatus    string    `json:"current_status,omitempty"`
	ValidTransitions []string  `json:"valid_transitions,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		Timestamp: time.Now(),
	}
	write(w, statusCode, response)
}

// Success sends a successful JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a created JSON response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	response := ErrorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now(),
	}

	if err != nil {
		response.Error = err.Error()
	}

	write(w, statusCode, response)
}

// BadRequest sends a 400 bad request response
func BadRequest(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusBadRequest, message, err)
}

// NotFound sends a 404 not found response
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, nil)
}

// InternalServerError sends a 500 internal server error response
func InternalServerError(w http.ResponseWriter, message string, err error) {
	Error(w, http.StatusInternalServerError, message, err)
}

var statusByCode = map[string]int{
	customError.ErrCodeNotFound:                 http.StatusNotFound,
	customError.ErrCodeValidation:               http.StatusBadRequest,
	customError.ErrCodeUnauthorized:             http.StatusForbidden,
	customError.ErrCodeSelfApprovalForbidden:    http.StatusForbidden,
	customError.ErrCodeInvalidTransition:        http.StatusConflict,
	customError.ErrCodeAlreadyTerminal:          http.StatusConflict,
	customError.ErrCodeDuplicateTask:            http.StatusConflict,
	customError.ErrCodeAlreadyClaimed:           http.StatusConflict,
	customError.ErrCodeNotAssignee:              http.StatusConflict,
	customError.ErrCodeWrongState:               http.StatusConflict,
	customError.ErrCodeDuplicatePendingApproval: http.StatusConflict,
	customError.ErrCodeAlreadyDecided:           http.StatusConflict,
	customError.ErrCodePreconditionUnmet:        http.StatusUnprocessableEntity,
	customError.ErrCodeConditionsPending:        http.StatusUnprocessableEntity,
	customError.ErrCodeOfferExpired:             http.StatusUnprocessableEntity,
	customError.ErrCodeAllocationMismatch:       http.StatusUnprocessableEntity,
	customError.ErrCodeExternalServiceFailure:   http.StatusBadGateway,
	customError.ErrCodeLockError:                http.StatusServiceUnavailable,
}

// StatusFor maps a business error code to an HTTP status
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError writes err with its business code and, for state machine
// errors, the current status and its legal targets. Only the business
// message reaches the caller; errors without a code become a bare 500.
func FromError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	if !errors.As(err, &be) {
		InternalServerError(w, "Internal server error", nil)
		return
	}

	write(w, StatusFor(be.Code), ErrorResponse{
		Success:          false,
		Code:             be.Code,
		Error:            be.Message,
		CurrentStatus:    be.CurrentStatus,
		ValidTransitions: be.ValidTransitions,
		Timestamp:        time.Now(),
	})
}

func write(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

// JSONMiddleware sets JSON content type for all responses
func JSONMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewLoggingMiddleware logs every request with its status and duration
func NewLoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("actor_id", r.Header.Get("X-Actor-ID")),
			)
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
