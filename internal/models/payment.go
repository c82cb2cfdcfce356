package models

import "time"

// PaymentTransaction is the local record of a completed tuition payment.
// Rows are insert-only: one per tuition, written at the final step of a
// successful confirmation and never updated or deleted afterwards.
type PaymentTransaction struct {
	PaymentID   int64     `json:"paymentId" db:"payment_id"`
	CustomerID  int64     `json:"customerId" db:"customer_id"`
	TuitionID   int64     `json:"tuitionId" db:"tuition_id"` // unique across all transactions
	Amount      int64     `json:"amount" db:"amount"`        // minor currency unit
	PaymentDate time.Time `json:"paymentDate" db:"payment_date"`
}
