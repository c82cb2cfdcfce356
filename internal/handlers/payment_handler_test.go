package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/backend/internal/clients"
	"github.com/campuspay/backend/internal/config"
	"github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/services"
)

// fakeCollaborators stands in for the four collaborator services, answering
// with the shared response envelope. Failure switches flip individual steps.
type fakeCollaborators struct {
	balance       int64
	tuitionAmount int64
	otpValid      bool
	settleFails   bool
	creditFails   bool

	debitCalls  int
	creditCalls int
	mailCalls   int

	otp      *httptest.Server
	customer *httptest.Server
	tuition  *httptest.Server
	mail     *httptest.Server
}

func writeEnvelope(w http.ResponseWriter, data any) {
	payload, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(clients.GenericResponse{Success: true, Message: "OK", Data: payload})
}

func writeFailure(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(clients.GenericResponse{Success: false, Message: message})
}

func newFakeCollaborators(t *testing.T) *fakeCollaborators {
	f := &fakeCollaborators{
		balance:       5_000_000,
		tuitionAmount: 2_800_000,
		otpValid:      true,
	}

	otpMux := http.NewServeMux()
	otpMux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, clients.OTPIssue{Code: "123456", StatusMessage: clients.OTPStatusNew})
	})
	otpMux.HandleFunc("POST /resend", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, clients.OTPIssue{Code: "654321", StatusMessage: clients.OTPStatusResend})
	})
	otpMux.HandleFunc("POST /validate", func(w http.ResponseWriter, r *http.Request) {
		if !f.otpValid {
			writeFailure(w, http.StatusBadRequest, "Invalid or expired OTP.")
			return
		}
		writeEnvelope(w, map[string]bool{"valid": true})
	})
	f.otp = httptest.NewServer(otpMux)

	customerMux := http.NewServeMux()
	customerMux.HandleFunc("GET /balance", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, f.balance)
	})
	customerMux.HandleFunc("POST /balance/debit", func(w http.ResponseWriter, r *http.Request) {
		f.debitCalls++
		writeEnvelope(w, f.balance-f.tuitionAmount)
	})
	customerMux.HandleFunc("POST /balance/credit", func(w http.ResponseWriter, r *http.Request) {
		f.creditCalls++
		if f.creditFails {
			writeFailure(w, http.StatusServiceUnavailable, "customer service unavailable")
			return
		}
		writeEnvelope(w, f.balance)
	})
	customerMux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, clients.CustomerInfo{CustomerID: 42, Email: "student@example.edu", FullName: "Test Student"})
	})
	f.customer = httptest.NewServer(customerMux)

	tuitionMux := http.NewServeMux()
	tuitionMux.HandleFunc("GET /id/", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, clients.TuitionRecord{TuitionID: 77, StudentID: "S-1001", Amount: f.tuitionAmount})
	})
	tuitionMux.HandleFunc("POST /status", func(w http.ResponseWriter, r *http.Request) {
		if f.settleFails {
			writeFailure(w, http.StatusServiceUnavailable, "tuition service unavailable")
			return
		}
		writeEnvelope(w, map[string]bool{"updated": true})
	})
	f.tuition = httptest.NewServer(tuitionMux)

	mailMux := http.NewServeMux()
	mailMux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		f.mailCalls++
		writeEnvelope(w, map[string]bool{"sent": true})
	})
	f.mail = httptest.NewServer(mailMux)

	t.Cleanup(func() {
		f.otp.Close()
		f.customer.Close()
		f.tuition.Close()
		f.mail.Close()
	})

	return f
}

func newHandlerFixture(t *testing.T, f *fakeCollaborators) (*PaymentHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		CollaboratorTimeout: 2 * time.Second,
		OTPMaxPerCustomer:   5,
		OTPRateLimitWindow:  time.Hour,
	}

	service := services.NewPaymentService(
		services.NewPaymentLedgerService(db),
		clients.NewOTPClient(f.otp.URL, cfg.CollaboratorTimeout),
		clients.NewBalanceClient(f.customer.URL, cfg.CollaboratorTimeout),
		clients.NewTuitionClient(f.tuition.URL, cfg.CollaboratorTimeout),
		clients.NewNotificationClient(f.mail.URL, cfg.CollaboratorTimeout),
		nil,
		cfg,
	)

	return NewPaymentHandler(service), mock
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.WithCustomerID(req.Context(), 42))
}

func expectNoExistingPayment(mock sqlmock.Sqlmock, tuitionID int64) {
	mock.ExpectQuery("SELECT payment_id, customer_id, tuition_id, amount, payment_date FROM payment_transactions WHERE tuition_id = \\$1").
		WithArgs(tuitionID).
		WillReturnError(sql.ErrNoRows)
}

func TestPaymentHandler_GetPaymentHistory(t *testing.T) {
	t.Run("returns recorded payments", func(t *testing.T) {
		handler, mock := newHandlerFixture(t, newFakeCollaborators(t))

		mock.ExpectQuery("SELECT payment_id, customer_id, tuition_id, amount, payment_date FROM payment_transactions WHERE customer_id = \\$1 ORDER BY payment_date DESC").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"payment_id", "customer_id", "tuition_id", "amount", "payment_date"}).
				AddRow(101, 42, 77, 2_800_000, time.Now()))

		w := httptest.NewRecorder()
		handler.GetPaymentHistory(w, authedRequest("GET", "/api/v1/payments/info", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var transactions []map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &transactions))
		assert.Len(t, transactions, 1)
		assert.Equal(t, float64(77), transactions[0]["tuitionId"])
	})

	t.Run("returns 404 when the customer has no payments", func(t *testing.T) {
		handler, mock := newHandlerFixture(t, newFakeCollaborators(t))

		mock.ExpectQuery("SELECT payment_id, customer_id, tuition_id, amount, payment_date FROM payment_transactions WHERE customer_id = \\$1").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"payment_id", "customer_id", "tuition_id", "amount", "payment_date"}))

		w := httptest.NewRecorder()
		handler.GetPaymentHistory(w, authedRequest("GET", "/api/v1/payments/info", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, newFakeCollaborators(t))

		w := httptest.NewRecorder()
		handler.GetPaymentHistory(w, httptest.NewRequest("GET", "/api/v1/payments/info", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPaymentHandler_InitiatePayment(t *testing.T) {
	t.Run("issues an OTP and dispatches the email", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.InitiatePayment(w, authedRequest("POST", "/api/v1/payments/initiate", []byte(`{"tuitionId":77}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, f.mailCalls)
	})

	t.Run("rejects insufficient balance", func(t *testing.T) {
		f := newFakeCollaborators(t)
		f.balance = 1_000_000
		f.tuitionAmount = 1_500_000
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.InitiatePayment(w, authedRequest("POST", "/api/v1/payments/initiate", []byte(`{"tuitionId":77}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, services.ErrInsufficientFunds.Error(), resp.Error)
		assert.Equal(t, 0, f.mailCalls)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, newFakeCollaborators(t))

		w := httptest.NewRecorder()
		handler.InitiatePayment(w, authedRequest("POST", "/api/v1/payments/initiate", []byte(`not json`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, newFakeCollaborators(t))

		w := httptest.NewRecorder()
		handler.InitiatePayment(w, authedRequest("POST", "/api/v1/payments/initiate",
			[]byte(`{"tuitionId":77,"customerId":9}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a missing tuition id", func(t *testing.T) {
		handler, _ := newHandlerFixture(t, newFakeCollaborators(t))

		w := httptest.NewRecorder()
		handler.InitiatePayment(w, authedRequest("POST", "/api/v1/payments/initiate", []byte(`{}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "TuitionID")
	})
}

func TestPaymentHandler_ConfirmPayment(t *testing.T) {
	confirmBody := []byte(`{"tuitionId":77,"otpCode":"123456"}`)

	t.Run("settles the payment and returns the record", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO payment_transactions").
			WithArgs(int64(42), int64(77), int64(2_800_000), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"payment_id"}).AddRow(101))
		mock.ExpectCommit()

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm", confirmBody))

		assert.Equal(t, http.StatusOK, w.Code)
		var record map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
		assert.Equal(t, float64(101), record["paymentId"])
		assert.Equal(t, float64(2_800_000), record["amount"])
		assert.Equal(t, 1, f.debitCalls)
		assert.Equal(t, 0, f.creditCalls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("surfaces the OTP rejection without the step tag", func(t *testing.T) {
		f := newFakeCollaborators(t)
		f.otpValid = false
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm", confirmBody))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Invalid or expired OTP.", resp.Error)
		assert.Equal(t, 0, f.debitCalls)
	})

	t.Run("failed settlement is compensated and reported as a step failure", func(t *testing.T) {
		f := newFakeCollaborators(t)
		f.settleFails = true
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm", confirmBody))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Code)
		assert.Equal(t, 1, f.debitCalls)
		assert.Equal(t, 1, f.creditCalls)
	})

	t.Run("failed compensation carries the dedicated response code", func(t *testing.T) {
		f := newFakeCollaborators(t)
		f.settleFails = true
		f.creditFails = true
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm", confirmBody))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "COMPENSATION_FAILED", resp.Code)
		assert.Equal(t, 1, f.creditCalls)
	})

	t.Run("losing the insert race reverses the debit and reports already paid", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO payment_transactions").
			WithArgs(int64(42), int64(77), int64(2_800_000), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm", confirmBody))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, services.ErrAlreadyPaid.Error(), resp.Error)
		assert.Equal(t, 1, f.creditCalls)
	})

	t.Run("rejects a non-numeric OTP code before calling anyone", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, _ := newHandlerFixture(t, f)

		w := httptest.NewRecorder()
		handler.ConfirmPayment(w, authedRequest("POST", "/api/v1/payments/confirm",
			[]byte(`{"tuitionId":77,"otpCode":"abc123"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "OTPCode")
		assert.Equal(t, 0, f.debitCalls)
	})
}

func TestPaymentHandler_ResendOtp(t *testing.T) {
	t.Run("dispatches a fresh code", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, mock := newHandlerFixture(t, f)
		expectNoExistingPayment(mock, 77)

		w := httptest.NewRecorder()
		handler.ResendOtp(w, authedRequest("POST", "/api/v1/payments/resend", []byte(`{"tuitionId":77}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, f.mailCalls)
	})

	t.Run("refuses resend for a settled tuition", func(t *testing.T) {
		f := newFakeCollaborators(t)
		handler, mock := newHandlerFixture(t, f)

		mock.ExpectQuery("SELECT payment_id, customer_id, tuition_id, amount, payment_date FROM payment_transactions WHERE tuition_id = \\$1").
			WithArgs(int64(77)).
			WillReturnRows(sqlmock.NewRows([]string{"payment_id", "customer_id", "tuition_id", "amount", "payment_date"}).
				AddRow(101, 42, 77, 2_800_000, time.Now()))

		w := httptest.NewRecorder()
		handler.ResendOtp(w, authedRequest("POST", "/api/v1/payments/resend", []byte(`{"tuitionId":77}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp services.ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, services.ErrAlreadyPaid.Error(), resp.Error)
		assert.Equal(t, 0, f.mailCalls)
	})
}
