package services

import (
	"errors"
	"fmt"
)

// SagaStep identifies which step of the payment saga a failure occurred in.
// The step decides control flow: only StepTuitionUpdate triggers
// compensation, because it is the first step after money has moved.
type SagaStep string

const (
	StepOTPGeneration      SagaStep = "OTP Generation"
	StepOTPValidation      SagaStep = "OTP Validation"
	StepTuitionFetch       SagaStep = "Tuition Fetch"
	StepCustomerDebit      SagaStep = "Customer Debit"
	StepTuitionUpdate      SagaStep = "Tuition Update"
	StepCompensationCredit SagaStep = "Compensation Credit"
)

// Conflict errors detected by read-only checks, before any side effect.
var (
	ErrAlreadyPaid       = errors.New("tuition has already been paid")
	ErrInsufficientFunds = errors.New("insufficient balance for tuition payment")
	ErrDuplicateTuition  = errors.New("a payment transaction already exists for this tuition")
	ErrOTPRateLimited    = errors.New("too many OTP requests, please wait before retrying")
)

// StepError tags a collaborator failure with the saga step it occurred in.
// Handlers surface the underlying reason to the caller and drop the tag.
type StepError struct {
	Step SagaStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s Failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepFailure(step SagaStep, err error) error {
	return &StepError{Step: step, Err: err}
}

// CompensationError means the compensating credit after a failed settlement
// did not go through (or timed out, which is just as ambiguous): the customer
// ledger and the tuition store now disagree about real money. It is fatal and
// must never be retried automatically; reconciliation is manual.
type CompensationError struct {
	CustomerID int64
	TuitionID  int64
	Amount     int64
	Cause      error // the settlement failure that forced compensation
	CreditErr  error // why the compensating credit itself failed
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation credit of %d for tuition %d (customer %d) failed: %v; "+
		"original settlement failure: %v; manual reconciliation required",
		e.Amount, e.TuitionID, e.CustomerID, e.CreditErr, e.Cause)
}

func (e *CompensationError) Unwrap() error {
	return e.CreditErr
}
