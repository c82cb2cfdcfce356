package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/campuspay/backend/internal/clients"
)

// Collaborator calls run on per-call timeout contexts, so expectations never
// match on the context value.
var (
	anyCtx = mock.Anything
	anyArg = mock.Anything
)

type MockOTPVerifier struct {
	mock.Mock
}

func (m *MockOTPVerifier) Generate(ctx context.Context, customerID, tuitionID int64) (*clients.OTPIssue, error) {
	args := m.Called(ctx, customerID, tuitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.OTPIssue), args.Error(1)
}

func (m *MockOTPVerifier) Resend(ctx context.Context, customerID, tuitionID int64) (*clients.OTPIssue, error) {
	args := m.Called(ctx, customerID, tuitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.OTPIssue), args.Error(1)
}

func (m *MockOTPVerifier) Validate(ctx context.Context, customerID, tuitionID int64, otpCode string) error {
	args := m.Called(ctx, customerID, tuitionID, otpCode)
	return args.Error(0)
}

type MockBalanceLedger struct {
	mock.Mock
}

func (m *MockBalanceLedger) GetBalance(ctx context.Context, customerID int64) (int64, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceLedger) Debit(ctx context.Context, customerID, amount int64, description string) (int64, error) {
	args := m.Called(ctx, customerID, amount, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceLedger) Credit(ctx context.Context, customerID, amount int64, description string) (int64, error) {
	args := m.Called(ctx, customerID, amount, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceLedger) GetCustomerInfo(ctx context.Context, customerID int64) (*clients.CustomerInfo, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.CustomerInfo), args.Error(1)
}

type MockTuitionStore struct {
	mock.Mock
}

func (m *MockTuitionStore) GetTuition(ctx context.Context, customerID, tuitionID int64) (*clients.TuitionRecord, error) {
	args := m.Called(ctx, customerID, tuitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.TuitionRecord), args.Error(1)
}

func (m *MockTuitionStore) UpdateStatus(ctx context.Context, customerID, tuitionID int64, isPaid bool) error {
	args := m.Called(ctx, customerID, tuitionID, isPaid)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, customerID int64, to, subject, body string) error {
	args := m.Called(ctx, customerID, to, subject, body)
	return args.Error(0)
}
