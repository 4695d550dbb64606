package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/segyhp/loan-origination/internal/domain"
	"github.com/segyhp/loan-origination/internal/service"
	customError "github.com/segyhp/loan-origination/pkg/errors"
	"github.com/segyhp/loan-origination/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ActorHeader carries the authenticated actor. Authentication itself happens upstream.
const ActorHeader = "X-Actor-ID"

type WorkflowHandler struct {
	workflow  *service.Workflow
	validator *validator.Validate
	logger    *zap.Logger
}

func NewWorkflowHandler(workflow *service.Workflow, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		workflow:  workflow,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes mounts every workflow route on api
func (h *WorkflowHandler) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/applications", h.CreateApplication).Methods("POST")
	api.HandleFunc("/applications/{applicationId}", h.GetApplication).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/audit", h.AuditTrail).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/submit", h.Submit).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/transition", h.Transition).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/kyc", h.RecordKYCResult).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/credit-decision", h.RecordCreditDecision).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/esign", h.RecordESignCompleted).Methods("POST")

	api.HandleFunc("/applications/{applicationId}/tasks", h.ListTasks).Methods("GET")
	api.HandleFunc("/tasks/{taskId}/claim", h.ClaimTask).Methods("POST")
	api.HandleFunc("/tasks/{taskId}/release", h.ReleaseTask).Methods("POST")
	api.HandleFunc("/tasks/{taskId}/complete", h.CompleteTask).Methods("POST")

	api.HandleFunc("/applications/{applicationId}/approvals", h.RequestApproval).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/approvals", h.ListApprovals).Methods("GET")
	api.HandleFunc("/approvals/{approvalId}/decide", h.DecideApproval).Methods("POST")

	api.HandleFunc("/applications/{applicationId}/offers", h.GenerateOffer).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/offers/latest", h.GetLatestOffer).Methods("GET")
	api.HandleFunc("/offers/{offerId}/accept", h.AcceptOffer).Methods("POST")
	api.HandleFunc("/conditions/{conditionId}/satisfy", h.SatisfyCondition).Methods("POST")
	api.HandleFunc("/conditions/{conditionId}/waive", h.WaiveCondition).Methods("POST")

	api.HandleFunc("/applications/{applicationId}/allocation", h.GetAllocation).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/allocation/validate", h.ValidateAllocation).Methods("GET")
	api.HandleFunc("/applications/{applicationId}/allocation/lines", h.AddDisbursementLine).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/allocation/lines/{lineId}/amount", h.SetLineAmount).Methods("PUT")
	api.HandleFunc("/applications/{applicationId}/allocation/lines/{lineId}/percentage", h.SetLinePercentage).Methods("PUT")
	api.HandleFunc("/applications/{applicationId}/allocation/lines/{lineId}", h.RemoveLine).Methods("DELETE")
	api.HandleFunc("/applications/{applicationId}/allocation/distribute", h.DistributeEqually).Methods("POST")

	api.HandleFunc("/applications/{applicationId}/booking", h.InitiateBooking).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/booking/retry", h.RetryBooking).Methods("POST")
	api.HandleFunc("/applications/{applicationId}/booking/result", h.RecordBookingResult).Methods("POST")
}

func actorOf(r *http.Request) string {
	return r.Header.Get(ActorHeader)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, customError.WrapValidation(fmt.Sprintf("%s is not a valid UUID", name))
	}
	return id, nil
}

// decode reads the JSON body into dst and runs struct validation. An empty
// body is accepted for requests whose fields are all optional.
func (h *WorkflowHandler) decode(r *http.Request, dst interface{}) error {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return customError.WrapValidation("invalid request body: " + err.Error())
		}
	}
	if err := h.validator.Struct(dst); err != nil {
		return customError.WrapValidation(err.Error())
	}
	return nil
}

func (h *WorkflowHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("actor_id", actorOf(r)),
		zap.String("code", customError.CodeOf(err)),
		zap.Error(err),
	}
	if response.StatusFor(customError.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	response.FromError(w, err)
}

// applications

func (h *WorkflowHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateApplicationRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.CreateApplication(r.Context(), actorOf(r), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, info)
}

func (h *WorkflowHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	app, err := h.workflow.GetApplication(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, app)
}

func (h *WorkflowHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.GetStatusInfo(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

func (h *WorkflowHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	events, err := h.workflow.AuditTrail(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, events)
}

func (h *WorkflowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.Submit(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

func (h *WorkflowHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.TransitionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.Transition(r.Context(), id, actorOf(r), req.Target, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

func (h *WorkflowHandler) RecordKYCResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.KYCResultRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.RecordKYCResult(r.Context(), id, actorOf(r), req.Verified, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

func (h *WorkflowHandler) RecordCreditDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.CreditDecisionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.RecordCreditDecision(r.Context(), id, actorOf(r), req.Decision, req.ApprovedAmount, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

func (h *WorkflowHandler) RecordESignCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.ESignCompletedRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.RecordESignCompleted(r.Context(), id, actorOf(r), req.EnvelopeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}

// tasks

func (h *WorkflowHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tasks, err := h.workflow.ListTasks(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, tasks)
}

func (h *WorkflowHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "taskId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.ClaimTask(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *WorkflowHandler) ReleaseTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "taskId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.ReleaseTask(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *WorkflowHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "taskId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.CompleteTaskRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.CompleteTask(r.Context(), id, actorOf(r), req.Decision, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

// approvals

func (h *WorkflowHandler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.RequestApprovalRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.RequestApproval(r.Context(), id, actorOf(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, result)
}

func (h *WorkflowHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	approvals, err := h.workflow.ListApprovals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, approvals)
}

func (h *WorkflowHandler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "approvalId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.DecideApprovalRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.DecideApproval(r.Context(), id, actorOf(r), req.Approve, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

// offers

func (h *WorkflowHandler) GenerateOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.OfferTerms
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	offer, err := h.workflow.GenerateOffer(r.Context(), id, actorOf(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, offer)
}

func (h *WorkflowHandler) GetLatestOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	offer, err := h.workflow.GetLatestOffer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, offer)
}

func (h *WorkflowHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "offerId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	offer, err := h.workflow.AcceptOffer(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, offer)
}

func (h *WorkflowHandler) SatisfyCondition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conditionId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.SatisfyCondition(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *WorkflowHandler) WaiveCondition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conditionId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.WaiveConditionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.workflow.WaiveCondition(r.Context(), id, actorOf(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

// allocation

func (h *WorkflowHandler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.GetAllocation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *WorkflowHandler) ValidateAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.ValidateAllocation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *WorkflowHandler) AddDisbursementLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.AddLineRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.AddDisbursementLine(r.Context(), id, actorOf(r), req.AccountRef, req.IsExternal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, view)
}

func (h *WorkflowHandler) SetLineAmount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.SetAmountRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.SetLineAmount(r.Context(), id, actorOf(r), lineID, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *WorkflowHandler) SetLinePercentage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.SetPercentageRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.SetLinePercentage(r.Context(), id, actorOf(r), lineID, req.Percentage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *WorkflowHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.RemoveLine(r.Context(), id, actorOf(r), lineID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

func (h *WorkflowHandler) DistributeEqually(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.workflow.DistributeEqually(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, view)
}

// booking

func (h *WorkflowHandler) InitiateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.InitiateBooking(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, info)
}

func (h *WorkflowHandler) RetryBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	info, err := h.workflow.RetryBooking(r.Context(), id, actorOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, info)
}

// RecordBookingResult accepts a core banking callback
func (h *WorkflowHandler) RecordBookingResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "applicationId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req domain.BookingResultRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	actor := actorOf(r)
	if actor == "" {
		actor = service.CoreBankingActor
	}

	info, err := h.workflow.RecordBookingResult(r.Context(), id, actor, &domain.BookingResult{
		Success:          req.Success,
		BookingReference: req.BookingReference,
		ErrorMessage:     req.ErrorMessage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, info)
}
