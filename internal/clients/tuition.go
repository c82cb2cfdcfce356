package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TuitionRecord mirrors the tuition service's record. Amount is the
// authoritative price and is always fetched fresh at confirmation time.
type TuitionRecord struct {
	TuitionID    int64  `json:"tuitionId"`
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	Amount       int64  `json:"amount"`
	Semester     string `json:"semester"`
	AcademicYear string `json:"academicYear"`
	IsPaid       bool   `json:"isPaid"`
}

// TuitionClient talks to the tuition service, which owns tuition records and
// their isPaid status.
type TuitionClient struct {
	serviceClient
}

func NewTuitionClient(baseURL string, timeout time.Duration) *TuitionClient {
	return &TuitionClient{serviceClient: newServiceClient("tuition", baseURL, timeout)}
}

type tuitionStatusRequest struct {
	TuitionID int64 `json:"tuitionId"`
	IsPaid    bool  `json:"isPaid"`
}

func (c *TuitionClient) GetTuition(ctx context.Context, customerID, tuitionID int64) (*TuitionRecord, error) {
	var record TuitionRecord
	path := fmt.Sprintf("/id/%d", tuitionID)
	if err := c.do(ctx, http.MethodGet, path, customerID, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateStatus marks the tuition record paid or unpaid. Marking paid is the
// settlement step of a confirmation.
func (c *TuitionClient) UpdateStatus(ctx context.Context, customerID, tuitionID int64, isPaid bool) error {
	return c.do(ctx, http.MethodPost, "/status", customerID, tuitionStatusRequest{TuitionID: tuitionID, IsPaid: isPaid}, nil)
}
