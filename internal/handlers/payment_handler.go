package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/services"
)

// PaymentHandler exposes the payment endpoint group. The acting customer is
// always the authenticated principal from the request context; request bodies
// never name a customer.
type PaymentHandler struct {
	service   *services.PaymentService
	validator *services.ValidationHelper
}

func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type initiateRequest struct {
	TuitionID int64 `json:"tuitionId" validate:"required,gt=0"`
}

type confirmRequest struct {
	TuitionID int64  `json:"tuitionId" validate:"required,gt=0"`
	OTPCode   string `json:"otpCode" validate:"required,len=6,numeric"`
}

// GetPaymentHistory lists the customer's recorded payments
// @Summary Payment history
// @Description List all recorded tuition payments for the authenticated customer
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.PaymentTransaction
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/info [get]
func (h *PaymentHandler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.CustomerIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	transactions, err := h.service.GetPaymentHistory(r.Context(), customerID)
	if err != nil {
		log.Printf("[PAYMENT] History fetch failed for customer %d: %v", customerID, err)
		services.SendErrorResponse(w, "Failed to fetch payment history", http.StatusInternalServerError, nil)
		return
	}

	if len(transactions) == 0 {
		services.SendErrorResponse(w, "No payment transactions found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// InitiatePayment starts a tuition payment by issuing an OTP
// @Summary Initiate payment
// @Description Run pre-checks and issue an OTP for the tuition payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body initiateRequest true "Tuition to pay"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/initiate [post]
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.CustomerIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req initiateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.service.InitiatePayment(r.Context(), customerID, req.TuitionID); err != nil {
		log.Printf("[PAYMENT] Initiate failed for customer %d, tuition %d: %v", customerID, req.TuitionID, err)
		h.writeSagaError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "OTP has been generated and sent to your email. Use /confirm to finalize the payment.",
	})
}

// ConfirmPayment finalizes a tuition payment
// @Summary Confirm payment
// @Description Validate the OTP, debit the balance, settle the tuition and record the transaction
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body confirmRequest true "Tuition and OTP code"
// @Success 200 {object} models.PaymentTransaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/confirm [post]
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.CustomerIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req confirmRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	transaction, err := h.service.ConfirmPayment(r.Context(), customerID, req.TuitionID, req.OTPCode)
	if err != nil {
		log.Printf("[PAYMENT] Confirm failed for customer %d, tuition %d: %v", customerID, req.TuitionID, err)
		h.writeSagaError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transaction)
}

// ResendOtp invalidates the previous OTP and dispatches a new one
// @Summary Resend OTP
// @Description Force a new OTP for a pending tuition payment and dispatch it
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body initiateRequest true "Tuition awaiting confirmation"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/resend [post]
func (h *PaymentHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	customerID, ok := middleware.CustomerIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req initiateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.service.ResendOtp(r.Context(), customerID, req.TuitionID); err != nil {
		log.Printf("[PAYMENT] Resend failed for customer %d, tuition %d: %v", customerID, req.TuitionID, err)
		h.writeSagaError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "New OTP has been generated and sent to your email.",
	})
}

// decodeBody applies the strict JSON decoding rules shared by all POST
// endpoints. It writes the error response itself and reports success.
func (h *PaymentHandler) decodeBody(w http.ResponseWriter, r *http.Request, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// writeSagaError maps orchestrator errors onto the HTTP surface. Step tags
// are stripped: the caller sees the underlying reason. A failed compensation
// gets a dedicated code so it cannot be mistaken for an ordinary failure.
func (h *PaymentHandler) writeSagaError(w http.ResponseWriter, err error) {
	var compErr *services.CompensationError
	var stepErr *services.StepError

	switch {
	case errors.As(err, &compErr):
		services.SendErrorResponseCode(w,
			"Payment is in an inconsistent state and requires manual reconciliation. Do not retry.",
			"COMPENSATION_FAILED", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrAlreadyPaid):
		services.SendErrorResponse(w, services.ErrAlreadyPaid.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInsufficientFunds):
		services.SendErrorResponse(w, services.ErrInsufficientFunds.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrOTPRateLimited):
		services.SendErrorResponse(w, services.ErrOTPRateLimited.Error(), http.StatusTooManyRequests, nil)
	case errors.As(err, &stepErr):
		services.SendErrorResponse(w, stepErr.Err.Error(), http.StatusBadRequest, nil)
	default:
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
