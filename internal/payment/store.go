package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// ErrRequestIDReused is returned when a client request id is replayed with
// different content.
var ErrRequestIDReused = errors.New("payment: client request id already used for a different settlement")

// DB is the subset of pgxpool.Pool used by Store.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store records settlements in Postgres. It is the local Submitter.
type Store struct {
	DB  DB
	Now func() time.Time
}

// NewStore constructs a Store.
func NewStore(db DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

// NewReceiptRef formats a human readable receipt number, e.g. RCPT-20260601-9F2C01AB.
func NewReceiptRef(at time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("RCPT-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(id[:8]))
}

// DocumentHandle is the storage path of a receipt document. A gateway
// reference, when present, prefixes it.
func DocumentHandle(branchID, ref, gatewayRef string) string {
	handle := "receipts/" + branchOrDefault(branchID) + "/" + ref + ".pdf"
	if gatewayRef != "" {
		return gatewayRef + ":" + handle
	}
	return handle
}

func branchOrDefault(branchID string) string {
	if branchID == "" {
		return "default"
	}
	return branchID
}

const insertSettlementSQL = `
INSERT INTO settlements (
	id, branch_id, enrollment_id, cashier_id, client_request_id, receipt_ref, document_handle,
	payment_method, subtotal, surcharge, total, remarks, fingerprint, settled_at, gateway_amount
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (branch_id, client_request_id) DO NOTHING
RETURNING id`

const insertLineSQL = `
INSERT INTO settlement_lines (settlement_id, position, source_id, category, amount, term_number, payment_month, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const findByRequestIDSQL = `
SELECT receipt_ref, document_handle, settled_at, total, fingerprint
FROM settlements
WHERE branch_id = $1 AND client_request_id = $2`

// Submit writes the settlement and its lines in one transaction. Replaying
// the same client request id returns the first receipt.
func (s *Store) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if s == nil || s.DB == nil {
		return Receipt{}, submissionFailed("local", errors.New("store not configured"))
	}
	if sub.ClientRequestID == "" {
		sub.ClientRequestID = uuid.NewString()
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	settledAt := now().UTC()
	ref := NewReceiptRef(settledAt)
	receipt := Receipt{
		Ref:            ref,
		DocumentHandle: DocumentHandle(sub.BranchID, ref, sub.GatewayRef),
		SettledAt:      settledAt,
		Total:          sub.Request.Total,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Receipt{}, submissionFailed("local", fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req := sub.Request
	var id string
	err = tx.QueryRow(ctx, insertSettlementSQL,
		uuid.NewString(), sub.BranchID, sub.EnrollmentID, sub.CashierID, sub.ClientRequestID, ref, receipt.DocumentHandle,
		string(req.PaymentMethod), req.Subtotal.Minor(), req.Surcharge.Minor(), req.Total.Minor(), nullable(req.Remarks), sub.Fingerprint, settledAt,
		gatewayMinor(sub.GatewayAmount),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.replay(ctx, tx, sub)
	}
	if err != nil {
		return Receipt{}, submissionFailed("local", fmt.Errorf("insert settlement: %w", err))
	}

	batch := &pgx.Batch{}
	for i, line := range req.LineItems {
		var term *int32
		if line.TermNumber != nil {
			n := int32(*line.TermNumber)
			term = &n
		}
		batch.Queue(insertLineSQL, id, i, line.SourceID, string(line.Category), line.Amount.Minor(), term, line.PaymentMonth, nullable(line.Reason))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Receipt{}, submissionFailed("local", fmt.Errorf("insert lines: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, submissionFailed("local", fmt.Errorf("commit: %w", err))
	}
	return receipt, nil
}

func gatewayMinor(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	v := m.Minor()
	return &v
}

func (s *Store) replay(ctx context.Context, tx pgx.Tx, sub Submission) (Receipt, error) {
	var (
		r           Receipt
		total       int64
		fingerprint string
	)
	err := tx.QueryRow(ctx, findByRequestIDSQL, sub.BranchID, sub.ClientRequestID).Scan(&r.Ref, &r.DocumentHandle, &r.SettledAt, &total, &fingerprint)
	if err != nil {
		return Receipt{}, submissionFailed("local", fmt.Errorf("load replayed settlement: %w", err))
	}
	if fingerprint != sub.Fingerprint {
		return Receipt{}, &SubmissionError{Submitter: "local", StatusCode: 409, Message: ErrRequestIDReused.Error(), Err: ErrRequestIDReused}
	}
	r.Total = money.FromMinor(total)
	r.Replayed = true
	return r, nil
}

// Record is a persisted settlement.
type Record struct {
	ID             string                   `json:"id"`
	EnrollmentID   string                   `json:"enrollmentId"`
	CashierID      string                   `json:"cashierId"`
	ReceiptRef     string                   `json:"receiptRef"`
	DocumentHandle string                   `json:"receiptDocumentHandle"`
	PaymentMethod  settlement.PaymentMethod `json:"paymentMethod"`
	Subtotal       money.Money              `json:"subtotal"`
	Surcharge      money.Money              `json:"surcharge"`
	Total          money.Money              `json:"total"`
	GatewayAmount  *money.Money             `json:"gatewayAmount,omitempty"`
	Remarks        string                   `json:"remarks,omitempty"`
	SettledAt      time.Time                `json:"settledAt"`
	Lines          []settlement.LineItem    `json:"lineItems"`
}

const listSettlementsSQL = `
SELECT id, enrollment_id, cashier_id, receipt_ref, document_handle, payment_method,
	subtotal, surcharge, total, gateway_amount, COALESCE(remarks, ''), settled_at
FROM settlements
WHERE branch_id = $1 AND enrollment_id = $2
ORDER BY settled_at DESC, id
LIMIT $3 OFFSET $4`

const listLinesSQL = `
SELECT settlement_id, source_id, category, amount, term_number, payment_month, COALESCE(reason, '')
FROM settlement_lines
WHERE settlement_id = ANY($1)
ORDER BY settlement_id, position`

// ListSettlements returns an enrollment's settlements, newest first.
func (s *Store) ListSettlements(ctx context.Context, branchID, enrollmentID string, limit, offset int) ([]Record, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("payment: store not configured")
	}
	rows, err := s.DB.Query(ctx, listSettlementsSQL, branchID, enrollmentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("payment: list settlements: %w", err)
	}
	var (
		out   []Record
		ids   []string
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			rec                        Record
			method                     string
			subtotal, surcharge, total int64
			gateway                    *int64
		)
		if err := rows.Scan(&rec.ID, &rec.EnrollmentID, &rec.CashierID, &rec.ReceiptRef, &rec.DocumentHandle, &method,
			&subtotal, &surcharge, &total, &gateway, &rec.Remarks, &rec.SettledAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("payment: scan settlement: %w", err)
		}
		rec.PaymentMethod = settlement.PaymentMethod(method)
		rec.Subtotal = money.FromMinor(subtotal)
		rec.Surcharge = money.FromMinor(surcharge)
		rec.Total = money.FromMinor(total)
		if gateway != nil {
			charged := money.FromMinor(*gateway)
			rec.GatewayAmount = &charged
		}
		rec.Lines = []settlement.LineItem{}
		index[rec.ID] = len(out)
		ids = append(ids, rec.ID)
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate settlements: %w", err)
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}

	lines, err := s.DB.Query(ctx, listLinesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("payment: list lines: %w", err)
	}
	defer lines.Close()
	for lines.Next() {
		var (
			settlementID, category string
			line                   settlement.LineItem
			amount                 int64
			term                   *int32
		)
		if err := lines.Scan(&settlementID, &line.SourceID, &category, &amount, &term, &line.PaymentMonth, &line.Reason); err != nil {
			return nil, fmt.Errorf("payment: scan line: %w", err)
		}
		line.Category = catalog.Category(category)
		line.Amount = money.FromMinor(amount)
		if term != nil {
			n := int(*term)
			line.TermNumber = &n
		}
		if i, ok := index[settlementID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lines.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
