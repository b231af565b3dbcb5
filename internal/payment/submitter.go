package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// Submission is a composed settlement on its way to the ledger.
type Submission struct {
	ClientRequestID string             `json:"clientRequestId"`
	BranchID        string             `json:"branchId"`
	EnrollmentID    string             `json:"enrollmentId"`
	CashierID       string             `json:"cashierId"`
	Fingerprint     string             `json:"fingerprint"`
	GatewayRef      string             `json:"gatewayRef,omitempty"`
	GatewayAmount   *money.Money       `json:"gatewayAmount,omitempty"`
	Request         settlement.Request `json:"request"`
}

// Receipt is what the ledger hands back for a recorded settlement.
type Receipt struct {
	Ref            string      `json:"receiptRef"`
	DocumentHandle string      `json:"receiptDocumentHandle"`
	SettledAt      time.Time   `json:"settledAt"`
	Total          money.Money `json:"total"`
	Replayed       bool        `json:"replayed,omitempty"`
}

// Submitter records a settlement. Implementations never retry on their own.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (Receipt, error)
}

// SubmissionError wraps any failure to record a settlement.
type SubmissionError struct {
	Submitter  string
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment: %s submission failed (%d): %s", e.Submitter, e.StatusCode, msg)
	}
	return fmt.Sprintf("payment: %s submission failed: %s", e.Submitter, msg)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func submissionFailed(submitter string, err error) *SubmissionError {
	return &SubmissionError{Submitter: submitter, Err: err}
}
