package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/external/party"
	"github.com/segyhp/loan-origination/internal/repository"
	"github.com/segyhp/loan-origination/internal/service"
	customError "github.com/segyhp/loan-origination/pkg/errors"
)

const officer = "officer-1"

type envelope struct {
	Success          bool            `json:"success"`
	Code             string          `json:"code"`
	Error            string          `json:"error"`
	CurrentStatus    string          `json:"current_status"`
	ValidTransitions []string        `json:"valid_transitions"`
	Data             json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	wf := service.NewWorkflow(service.WorkflowDeps{
		Repositories: repository.NewMemoryRepositories(),
		Parties:      party.AcceptAll{},
		Conditions:   service.StaticConditionPolicy{},
	})
	router := mux.NewRouter()
	NewWorkflowHandler(wf, nil).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())
	return router
}

func do(t *testing.T, router http.Handler, method, path, actor string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func createApplication(t *testing.T, router http.Handler) string {
	t.Helper()
	rec, env := do(t, router, http.MethodPost, "/api/v1/applications", officer, map[string]interface{}{
		"applicant_id":    "party-1",
		"approved_amount": "10000",
		"currency":        "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var info domain.StatusInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, domain.StatusDraft, info.Status)
	return info.ApplicationID.String()
}

func TestWorkflowHandler_CreateApplication(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name:       "Success - create draft",
			actor:      officer,
			body:       map[string]interface{}{"applicant_id": "party-1", "approved_amount": 2500, "currency": "EUR"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Failure - missing currency",
			actor:      officer,
			body:       map[string]interface{}{"applicant_id": "party-1", "approved_amount": 2500},
			wantStatus: http.StatusBadRequest,
			wantCode:   customError.ErrCodeValidation,
		},
		{
			name:       "Failure - zero amount",
			actor:      officer,
			body:       map[string]interface{}{"applicant_id": "party-1", "approved_amount": 0, "currency": "EUR"},
			wantStatus: http.StatusBadRequest,
			wantCode:   customError.ErrCodeValidation,
		},
		{
			name:       "Failure - missing actor header",
			body:       map[string]interface{}{"applicant_id": "party-1", "approved_amount": 2500, "currency": "EUR"},
			wantStatus: http.StatusBadRequest,
			wantCode:   customError.ErrCodeValidation,
		},
		{
			name:       "Failure - malformed body",
			actor:      officer,
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantCode:   customError.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, newRouter(t), http.MethodPost, "/api/v1/applications", tt.actor, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.Equal(t, tt.wantCode == "", env.Success)
		})
	}
}

func TestWorkflowHandler_SubmitAndStatus(t *testing.T) {
	router := newRouter(t)
	id := createApplication(t, router)

	rec, env := do(t, router, http.MethodPost, "/api/v1/applications/"+id+"/submit", officer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info domain.StatusInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, domain.StatusSubmitted, info.Status)
	assert.Equal(t, domain.PhaseDecisioning, info.Phase)

	rec, env = do(t, router, http.MethodGet, "/api/v1/applications/"+id+"/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, domain.StatusSubmitted, info.Status)

	rec, env = do(t, router, http.MethodGet, "/api/v1/applications/"+id+"/audit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []*domain.AuditEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventApplicationCreated, events[0].EventType)
	assert.Equal(t, domain.StatusSubmitted, events[1].NewState)
}

func TestWorkflowHandler_TransitionErrors(t *testing.T) {
	router := newRouter(t)
	id := createApplication(t, router)

	t.Run("invalid transition carries valid targets", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/api/v1/applications/"+id+"/transition", officer, domain.TransitionRequest{Target: domain.StatusApproved})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, customError.ErrCodeInvalidTransition, env.Code)
		assert.Equal(t, "DRAFT", env.CurrentStatus)
		assert.ElementsMatch(t, []string{"SUBMITTED", "CANCELLED"}, env.ValidTransitions)
	})

	t.Run("other actor cannot submit", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/api/v1/applications/"+id+"/submit", "intruder", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, customError.ErrCodeUnauthorized, env.Code)
	})

	t.Run("unknown target status", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/api/v1/applications/"+id+"/transition", officer, domain.TransitionRequest{Target: "LIMBO"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, customError.ErrCodeValidation, env.Code)
	})
}

func TestWorkflowHandler_PathErrors(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{name: "Failure - malformed application id", method: http.MethodGet, path: "/api/v1/applications/not-a-uuid/status", wantStatus: http.StatusBadRequest, wantCode: customError.ErrCodeValidation},
		{name: "Failure - unknown application", method: http.MethodGet, path: "/api/v1/applications/" + uuid.NewString(), wantStatus: http.StatusNotFound, wantCode: customError.ErrCodeNotFound},
		{name: "Failure - unknown task", method: http.MethodPost, path: "/api/v1/tasks/" + uuid.NewString() + "/claim", wantStatus: http.StatusNotFound, wantCode: customError.ErrCodeNotFound},
		{name: "Failure - unknown offer", method: http.MethodPost, path: "/api/v1/offers/" + uuid.NewString() + "/accept", wantStatus: http.StatusNotFound, wantCode: customError.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, router, tt.method, tt.path, officer, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestWorkflowHandler_DecisionPath(t *testing.T) {
	router := newRouter(t)
	id := createApplication(t, router)
	base := "/api/v1/applications/" + id

	steps := []struct {
		path   string
		actor  string
		body   interface{}
		status domain.Status
	}{
		{path: base + "/submit", actor: officer, status: domain.StatusSubmitted},
		{path: base + "/transition", actor: "kyc-service", body: domain.TransitionRequest{Target: domain.StatusPendingKYC}, status: domain.StatusPendingKYC},
		{path: base + "/kyc", actor: "kyc-service", body: domain.KYCResultRequest{Verified: true}, status: domain.StatusPendingCreditCheck},
		{path: base + "/credit-decision", actor: "credit-engine", body: map[string]string{"decision": "APPROVE"}, status: domain.StatusApproved},
		{path: base + "/offers", actor: officer, body: map[string]int{"term_months": 12}, status: domain.StatusOfferGenerated},
	}

	for _, step := range steps {
		rec, env := do(t, router, http.MethodPost, step.path, step.actor, step.body)
		require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
		require.True(t, env.Success)
	}

	rec, env := do(t, router, http.MethodGet, base+"/offers/latest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var offer domain.OfferResponse
	require.NoError(t, json.Unmarshal(env.Data, &offer))
	assert.Equal(t, domain.OfferStatusActive, offer.Offer.Status)
	assert.Empty(t, offer.Conditions)

	rec, env = do(t, router, http.MethodPost, "/api/v1/offers/"+offer.Offer.ID.String()+"/accept", "party-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &offer))
	assert.Equal(t, domain.OfferStatusAccepted, offer.Offer.Status)
}

func TestWorkflowHandler_InvalidCreditDecision(t *testing.T) {
	router := newRouter(t)
	id := createApplication(t, router)

	rec, env := do(t, router, http.MethodPost, "/api/v1/applications/"+id+"/credit-decision", "credit-engine", map[string]string{"decision": "MAYBE"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, customError.ErrCodeValidation, env.Code)
}
