package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/campuspay/backend/internal/clients"
	"github.com/campuspay/backend/internal/config"
	"github.com/campuspay/backend/internal/models"
)

// Collaborator contracts consumed by the orchestrator. The concrete HTTP
// clients live in internal/clients; tests substitute mocks.

type OTPVerifier interface {
	Generate(ctx context.Context, customerID, tuitionID int64) (*clients.OTPIssue, error)
	Resend(ctx context.Context, customerID, tuitionID int64) (*clients.OTPIssue, error)
	Validate(ctx context.Context, customerID, tuitionID int64, otpCode string) error
}

type BalanceLedger interface {
	GetBalance(ctx context.Context, customerID int64) (int64, error)
	Debit(ctx context.Context, customerID, amount int64, description string) (int64, error)
	Credit(ctx context.Context, customerID, amount int64, description string) (int64, error)
	GetCustomerInfo(ctx context.Context, customerID int64) (*clients.CustomerInfo, error)
}

type TuitionStore interface {
	GetTuition(ctx context.Context, customerID, tuitionID int64) (*clients.TuitionRecord, error)
	UpdateStatus(ctx context.Context, customerID, tuitionID int64, isPaid bool) error
}

type Notifier interface {
	Send(ctx context.Context, customerID int64, to, subject, body string) error
}

// PaymentService coordinates the OTP verifier, the customer balance ledger
// and the tuition store into a single all-or-nothing payment outcome. None of
// the three supports a shared transaction, so confirmation runs as a saga:
// strictly ordered forward steps with one compensating credit behind the
// settlement boundary.
type PaymentService struct {
	ledger   *PaymentLedgerService
	otp      OTPVerifier
	balance  BalanceLedger
	tuition  TuitionStore
	notifier Notifier
	redis    *redis.Client
	cfg      *config.Config
}

func NewPaymentService(ledger *PaymentLedgerService, otp OTPVerifier, balance BalanceLedger,
	tuition TuitionStore, notifier Notifier, redisClient *redis.Client, cfg *config.Config) *PaymentService {
	return &PaymentService{
		ledger:   ledger,
		otp:      otp,
		balance:  balance,
		tuition:  tuition,
		notifier: notifier,
		redis:    redisClient,
		cfg:      cfg,
	}
}

// callCtx bounds a single collaborator call. A timeout counts as a hard
// failure of that step.
func (s *PaymentService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
}

// GetPaymentHistory returns the customer's recorded payments, newest first.
func (s *PaymentService) GetPaymentHistory(ctx context.Context, customerID int64) ([]models.PaymentTransaction, error) {
	return s.ledger.FindByCustomerID(ctx, customerID)
}

// InitiatePayment runs the pre-checks and issues an OTP. Nothing is persisted
// locally: the balance check here is advisory and is re-verified at
// confirmation time, when the debit itself is the authoritative check.
func (s *PaymentService) InitiatePayment(ctx context.Context, customerID, tuitionID int64) error {
	amount, err := s.preflight(ctx, customerID, tuitionID)
	if err != nil {
		return err
	}

	if err := s.checkOTPRateLimit(ctx, customerID); err != nil {
		return err
	}

	cctx, cancel := s.callCtx(ctx)
	issue, err := s.otp.Generate(cctx, customerID, tuitionID)
	cancel()
	if err != nil {
		return stepFailure(StepOTPGeneration, err)
	}
	s.incrementOTPRateLimit(ctx, customerID)

	if issue.Reused() {
		log.Printf("[PAYMENT] Existing OTP reused for tuition %d, skipping notification dispatch", tuitionID)
		return nil
	}

	s.dispatchOTPEmail(ctx, customerID, tuitionID, amount, issue.Code)
	return nil
}

// ResendOtp forces the OTP service to invalidate any existing code and issue
// a new one, then dispatches it unconditionally.
func (s *PaymentService) ResendOtp(ctx context.Context, customerID, tuitionID int64) error {
	amount, err := s.preflight(ctx, customerID, tuitionID)
	if err != nil {
		return err
	}

	if err := s.checkOTPRateLimit(ctx, customerID); err != nil {
		return err
	}

	cctx, cancel := s.callCtx(ctx)
	issue, err := s.otp.Resend(cctx, customerID, tuitionID)
	cancel()
	if err != nil {
		return stepFailure(StepOTPGeneration, err)
	}
	s.incrementOTPRateLimit(ctx, customerID)

	log.Printf("[PAYMENT] Forced OTP resend for tuition %d, previous code invalidated", tuitionID)
	s.dispatchOTPEmail(ctx, customerID, tuitionID, amount, issue.Code)
	return nil
}

// preflight runs the read-only checks shared by initiation and resend:
// already-paid guard, authoritative amount fetch, advisory balance check.
// It returns the tuition amount for the OTP notification.
func (s *PaymentService) preflight(ctx context.Context, customerID, tuitionID int64) (int64, error) {
	existing, err := s.ledger.FindByTuitionID(ctx, tuitionID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrAlreadyPaid
	}

	cctx, cancel := s.callCtx(ctx)
	tuition, err := s.tuition.GetTuition(cctx, customerID, tuitionID)
	cancel()
	if err != nil {
		return 0, stepFailure(StepTuitionFetch, err)
	}
	if tuition.Amount <= 0 {
		return 0, stepFailure(StepTuitionFetch, fmt.Errorf("tuition %d has a missing or invalid amount", tuitionID))
	}

	cctx, cancel = s.callCtx(ctx)
	balance, err := s.balance.GetBalance(cctx, customerID)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch customer balance: %w", err)
	}
	if balance < tuition.Amount {
		return 0, ErrInsufficientFunds
	}

	return tuition.Amount, nil
}

// ConfirmPayment executes the saga:
//
//	guard -> OTP validate -> amount resolve -> debit -> tuition settle -> record
//
// Failures before the debit end the saga with no side effect to undo.
// A settlement failure after the debit triggers the compensating credit.
// Once the debit has executed the saga runs on a cancellation-detached
// context: a disconnecting caller must not strand moved money.
func (s *PaymentService) ConfirmPayment(ctx context.Context, customerID, tuitionID int64, otpCode string) (*models.PaymentTransaction, error) {
	existing, err := s.ledger.FindByTuitionID(ctx, tuitionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyPaid
	}

	cctx, cancel := s.callCtx(ctx)
	err = s.otp.Validate(cctx, customerID, tuitionID, otpCode)
	cancel()
	if err != nil {
		return nil, stepFailure(StepOTPValidation, err)
	}

	// The amount is always re-resolved from the tuition store; the caller is
	// never trusted for it.
	cctx, cancel = s.callCtx(ctx)
	tuition, err := s.tuition.GetTuition(cctx, customerID, tuitionID)
	cancel()
	if err != nil {
		return nil, stepFailure(StepTuitionFetch, err)
	}
	if tuition.Amount <= 0 {
		return nil, stepFailure(StepTuitionFetch, fmt.Errorf("tuition %d has a missing or invalid amount", tuitionID))
	}
	amount := tuition.Amount

	cctx, cancel = s.callCtx(ctx)
	_, err = s.balance.Debit(cctx, customerID, amount, fmt.Sprintf("Tuition Payment for ID %d", tuitionID))
	cancel()
	if err != nil {
		return nil, stepFailure(StepCustomerDebit, err)
	}

	// Money has moved. From here the saga must reach settlement or
	// compensation even if the caller's context is cancelled.
	detached := context.WithoutCancel(ctx)

	cctx, cancel = s.callCtx(detached)
	err = s.tuition.UpdateStatus(cctx, customerID, tuitionID, true)
	cancel()
	if err != nil {
		if compErr := s.compensateDebit(detached, customerID, tuitionID, amount, err); compErr != nil {
			return nil, compErr
		}
		return nil, stepFailure(StepTuitionUpdate, err)
	}

	record, err := s.ledger.InsertTransaction(detached, customerID, tuitionID, amount)
	if err != nil {
		if errors.Is(err, ErrDuplicateTuition) {
			// Lost the race against a concurrent confirmation: the winner
			// recorded first, so this saga's debit has to be reversed.
			log.Printf("[PAYMENT] Concurrent confirmation won the insert for tuition %d, reversing loser's debit", tuitionID)
			if compErr := s.compensateDebit(detached, customerID, tuitionID, amount, err); compErr != nil {
				return nil, compErr
			}
			return nil, ErrAlreadyPaid
		}
		log.Printf("[PAYMENT] Ledger insert failed after settlement for tuition %d: %v", tuitionID, err)
		return nil, err
	}

	log.Printf("[PAYMENT] Payment recorded: payment=%d customer=%d tuition=%d amount=%d",
		record.PaymentID, customerID, tuitionID, amount)

	s.dispatchSuccessEmail(detached, customerID, tuitionID, amount)
	return record, nil
}

// compensateDebit credits the debited amount back after a failed settlement.
// A nil return means the balance was restored; a non-nil return is the fatal
// manual-reconciliation condition. A timeout here is ambiguous (the credit
// may or may not have landed) and is treated exactly like an explicit
// failure: never retried, always escalated.
func (s *PaymentService) compensateDebit(ctx context.Context, customerID, tuitionID, amount int64, cause error) *CompensationError {
	log.Printf("[COMPENSATION] Settlement failed for tuition %d, crediting %d back to customer %d: %v",
		tuitionID, amount, customerID, cause)

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	_, err := s.balance.Credit(cctx, customerID, amount, fmt.Sprintf("Compensation Credit for failed Tuition ID: %d", tuitionID))
	if err != nil {
		log.Printf("[COMPENSATION] CRITICAL: compensation credit failed for customer %d, tuition %d: %v. "+
			"Ledger and tuition store disagree. MANUAL INTERVENTION REQUIRED", customerID, tuitionID, err)
		return &CompensationError{
			CustomerID: customerID,
			TuitionID:  tuitionID,
			Amount:     amount,
			Cause:      cause,
			CreditErr:  err,
		}
	}

	log.Printf("[COMPENSATION] Customer %d balance restored for tuition %d", customerID, tuitionID)
	return nil
}

// dispatchOTPEmail delivers the code via the notification collaborator.
// Delivery is best-effort: a failure is logged, never surfaced.
func (s *PaymentService) dispatchOTPEmail(ctx context.Context, customerID, tuitionID, amount int64, otpCode string) {
	cctx, cancel := s.callCtx(ctx)
	info, err := s.balance.GetCustomerInfo(cctx, customerID)
	cancel()
	if err != nil {
		log.Printf("[NOTIFY] Failed to resolve email for customer %d: %v", customerID, err)
		return
	}

	subject := "Your OTP for Tuition Payment"
	body := fmt.Sprintf("Your One-Time Password for payment (Tuition ID: %d, Amount: %d) is: %s",
		tuitionID, amount, otpCode)

	cctx, cancel = s.callCtx(ctx)
	defer cancel()
	if err := s.notifier.Send(cctx, customerID, info.Email, subject, body); err != nil {
		log.Printf("[NOTIFY] OTP email dispatch failed for customer %d: %v", customerID, err)
		return
	}
	log.Printf("[NOTIFY] OTP for tuition %d sent to %s", tuitionID, info.Email)
}

// dispatchSuccessEmail sends the payment confirmation. Best-effort: the
// settled funds and tuition state stand whether or not this lands.
func (s *PaymentService) dispatchSuccessEmail(ctx context.Context, customerID, tuitionID, amount int64) {
	cctx, cancel := s.callCtx(ctx)
	info, err := s.balance.GetCustomerInfo(cctx, customerID)
	cancel()
	if err != nil {
		log.Printf("[NOTIFY] Failed to resolve email for customer %d: %v", customerID, err)
		return
	}

	subject := "Tuition Payment Successful"
	body := fmt.Sprintf("Your payment of %d for Tuition ID %d has been processed successfully.", amount, tuitionID)

	cctx, cancel = s.callCtx(ctx)
	defer cancel()
	if err := s.notifier.Send(cctx, customerID, info.Email, subject, body); err != nil {
		log.Printf("[NOTIFY] Success email dispatch failed for customer %d: %v", customerID, err)
	}
}

// OTP issuance rate limiting, tracked in redis per customer. Skipped when
// redis is unavailable so payments do not depend on the cache being up.

func (s *PaymentService) checkOTPRateLimit(ctx context.Context, customerID int64) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("otp:ratelimit:%d", customerID)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		log.Printf("[PAYMENT] Rate limit check unavailable for customer %d: %v", customerID, err)
		return nil
	}
	if count >= s.cfg.OTPMaxPerCustomer {
		return ErrOTPRateLimited
	}
	return nil
}

func (s *PaymentService) incrementOTPRateLimit(ctx context.Context, customerID int64) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("otp:ratelimit:%d", customerID)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.OTPRateLimitWindow)
	pipe.Exec(ctx)
}
