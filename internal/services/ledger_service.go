package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/campuspay/backend/internal/models"
)

const uniqueViolationCode = "23505"

// PaymentLedgerService is the local durable store of completed payments.
// The UNIQUE constraint on tuition_id is the system's idempotency guard:
// two concurrent confirmations for the same tuition race to this insert and
// exactly one wins, regardless of what the application checked earlier.
type PaymentLedgerService struct {
	db *sql.DB
}

func NewPaymentLedgerService(db *sql.DB) *PaymentLedgerService {
	return &PaymentLedgerService{db: db}
}

// InsertTransaction records a completed payment. It runs in its own
// repeatable-read transaction so the row the caller gets back is exactly the
// committed row. A unique violation on tuition_id maps to ErrDuplicateTuition
// so callers can tell a lost race from a storage fault.
func (s *PaymentLedgerService) InsertTransaction(ctx context.Context, customerID, tuitionID, amount int64) (*models.PaymentTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	record := &models.PaymentTransaction{
		CustomerID:  customerID,
		TuitionID:   tuitionID,
		Amount:      amount,
		PaymentDate: time.Now(),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (customer_id, tuition_id, amount, payment_date)
		VALUES ($1, $2, $3, $4)
		RETURNING payment_id
	`, record.CustomerID, record.TuitionID, record.Amount, record.PaymentDate).Scan(&record.PaymentID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolationCode {
			return nil, ErrDuplicateTuition
		}
		return nil, fmt.Errorf("failed to insert payment transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolationCode {
			return nil, ErrDuplicateTuition
		}
		return nil, fmt.Errorf("failed to commit payment transaction: %w", err)
	}

	return record, nil
}

// FindByTuitionID returns the recorded payment for a tuition, or nil if none
// exists yet.
func (s *PaymentLedgerService) FindByTuitionID(ctx context.Context, tuitionID int64) (*models.PaymentTransaction, error) {
	var record models.PaymentTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT payment_id, customer_id, tuition_id, amount, payment_date
		FROM payment_transactions
		WHERE tuition_id = $1
	`, tuitionID).Scan(&record.PaymentID, &record.CustomerID, &record.TuitionID, &record.Amount, &record.PaymentDate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment for tuition %d: %w", tuitionID, err)
	}

	return &record, nil
}

// FindByCustomerID returns the customer's payment history, newest first.
func (s *PaymentLedgerService) FindByCustomerID(ctx context.Context, customerID int64) ([]models.PaymentTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, customer_id, tuition_id, amount, payment_date
		FROM payment_transactions
		WHERE customer_id = $1
		ORDER BY payment_date DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment history: %w", err)
	}
	defer rows.Close()

	transactions := []models.PaymentTransaction{}
	for rows.Next() {
		var record models.PaymentTransaction
		if err := rows.Scan(&record.PaymentID, &record.CustomerID, &record.TuitionID, &record.Amount, &record.PaymentDate); err != nil {
			return nil, err
		}
		transactions = append(transactions, record)
	}

	return transactions, rows.Err()
}
