package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-sekolah/internal/money"
)

var (
	// ErrEnrollmentRequired is returned when no enrollment id is supplied.
	ErrEnrollmentRequired = errors.New("catalog: enrollment id is required")
	// ErrBookFeeNotFound is returned when the enrollment carries no book fee item.
	ErrBookFeeNotFound = errors.New("catalog: book fee not found")
)

// Provider supplies the fee catalog of an enrollment.
type Provider interface {
	FetchFeeItems(ctx context.Context, branchID, enrollmentID string) ([]FeeLineItem, error)
}

// DB is the subset of pgxpool.Pool used by Store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store reads and adjusts fee items in Postgres.
type Store struct {
	DB DB
}

// NewStore constructs a Store.
func NewStore(db DB) *Store {
	return &Store{DB: db}
}

const listFeeItemsSQL = `
SELECT id, category, label, original_amount, term_number, payment_month
FROM fee_items
WHERE branch_id = $1 AND enrollment_id = $2 AND archived_at IS NULL
ORDER BY position, id`

// FetchFeeItems returns the catalog in stable catalog order.
func (s *Store) FetchFeeItems(ctx context.Context, branchID, enrollmentID string) ([]FeeLineItem, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("catalog: store not configured")
	}
	if strings.TrimSpace(enrollmentID) == "" {
		return nil, ErrEnrollmentRequired
	}
	rows, err := s.DB.Query(ctx, listFeeItemsSQL, branchID, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list fee items: %w", err)
	}
	defer rows.Close()

	items := make([]FeeLineItem, 0, 8)
	for rows.Next() {
		var (
			item     FeeLineItem
			category string
			amount   int64
			term     *int32
			month    *string
		)
		if err := rows.Scan(&item.ID, &category, &item.Label, &amount, &term, &month); err != nil {
			return nil, fmt.Errorf("catalog: scan fee item: %w", err)
		}
		if item.ID == OtherFeeID {
			return nil, fmt.Errorf("catalog: enrollment %s: %w", enrollmentID, ErrReservedID)
		}
		item.Category, err = ParseCategory(category)
		if err != nil {
			return nil, fmt.Errorf("catalog: item %s: %w", item.ID, err)
		}
		item.OriginalAmount = money.FromMinor(amount)
		if term != nil {
			n := int(*term)
			item.TermNumber = &n
		}
		item.PaymentMonth = month
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate fee items: %w", err)
	}
	return items, nil
}

const updateBookFeeSQL = `
WITH prev AS (
	SELECT id, original_amount
	FROM fee_items
	WHERE branch_id = $1 AND enrollment_id = $2 AND category = 'BOOK_FEE' AND archived_at IS NULL
	FOR UPDATE
)
UPDATE fee_items f
SET original_amount = $3, updated_at = now()
FROM prev
WHERE f.id = prev.id
RETURNING f.id, prev.original_amount`

// UpdateBookFee rewrites the declared amount of the enrollment's book fee.
func (s *Store) UpdateBookFee(ctx context.Context, branchID, enrollmentID string, amount money.Money) (BookFeeChange, error) {
	var change BookFeeChange
	if s == nil || s.DB == nil {
		return change, errors.New("catalog: store not configured")
	}
	var previous int64
	err := s.DB.QueryRow(ctx, updateBookFeeSQL, branchID, enrollmentID, amount.Minor()).Scan(&change.ItemID, &previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return change, ErrBookFeeNotFound
		}
		return change, fmt.Errorf("catalog: update book fee: %w", err)
	}
	change.Previous = money.FromMinor(previous)
	change.Current = amount
	return change, nil
}
