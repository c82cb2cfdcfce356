package clients

import (
	"context"
	"net/http"
	"time"
)

// CustomerInfo is the profile slice the customer service exposes; the email
// is what notification dispatch addresses.
type CustomerInfo struct {
	CustomerID       int64  `json:"customerId"`
	Email            string `json:"email"`
	FullName         string `json:"fullName"`
	AvailableBalance int64  `json:"availableBalance"`
}

// BalanceClient talks to the customer account service, which owns the single
// availableBalance integer per customer. Balance mutations go through debit
// and credit only; both return the resulting balance.
type BalanceClient struct {
	serviceClient
}

func NewBalanceClient(baseURL string, timeout time.Duration) *BalanceClient {
	return &BalanceClient{serviceClient: newServiceClient("customer", baseURL, timeout)}
}

type balanceOpRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (c *BalanceClient) GetBalance(ctx context.Context, customerID int64) (int64, error) {
	var balance int64
	if err := c.do(ctx, http.MethodGet, "/balance", customerID, nil, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit withdraws amount from the customer balance. The customer service
// rejects the call if funds are insufficient.
func (c *BalanceClient) Debit(ctx context.Context, customerID, amount int64, description string) (int64, error) {
	var balance int64
	err := c.do(ctx, http.MethodPost, "/balance/debit", customerID, balanceOpRequest{Amount: amount, Description: description}, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit returns amount to the customer balance. Used only for compensation.
func (c *BalanceClient) Credit(ctx context.Context, customerID, amount int64, description string) (int64, error) {
	var balance int64
	err := c.do(ctx, http.MethodPost, "/balance/credit", customerID, balanceOpRequest{Amount: amount, Description: description}, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (c *BalanceClient) GetCustomerInfo(ctx context.Context, customerID int64) (*CustomerInfo, error) {
	var info CustomerInfo
	if err := c.do(ctx, http.MethodGet, "/info", customerID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
