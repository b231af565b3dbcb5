package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/audit"
	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/events"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

func cardDraft() Draft {
	return Draft{
		EnrollmentID:  "enr-1",
		Items:         []DraftItem{{ID: "bus-jul"}},
		PaymentMethod: "CARD",
	}
}

func TestPreviewComposesDraft(t *testing.T) {
	f := newServiceFixture(t)
	d := Draft{
		EnrollmentID:  "enr-1",
		Items:         []DraftItem{{ID: "tuition-1"}, {ID: "book", Amount: strPtr("450")}},
		OtherFee:      &DraftOtherFee{Amount: "100000", Reason: "Building fund"},
		PaymentMethod: "CASH",
	}
	p, err := f.svc.Preview(context.Background(), "north", d)
	require.NoError(t, err)
	require.Equal(t, "101450.00", p.Request.Total.String())
	require.Equal(t, p.Request.Fingerprint(), p.Confirmation)
	require.Len(t, p.Confirmation, 64)

	require.Len(t, p.Summary.Lines, 3)
	require.Equal(t, "book", p.Summary.Lines[0].SourceID)
	require.Equal(t, "Building fund", p.Summary.Lines[2].Label)
	require.Equal(t, "1,00,000.00", p.Summary.Lines[2].Amount)
	require.Equal(t, "1,01,450.00", p.Summary.Total)
	require.Zero(t, f.submitter.count())
}

func TestPreviewSurfacesValidationErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Preview(ctx, "north", Draft{EnrollmentID: "enr-1", PaymentMethod: "CASH"})
	require.ErrorIs(t, err, settlement.ErrEmptySelection)

	_, err = f.svc.Preview(ctx, "north", Draft{EnrollmentID: "enr-1", OtherFee: &DraftOtherFee{Amount: "100"}, PaymentMethod: "CASH"})
	require.ErrorIs(t, err, settlement.ErrInvalidOtherFee)

	_, err = f.svc.Preview(ctx, "north", Draft{EnrollmentID: "enr-1", Items: []DraftItem{{ID: "book"}}, PaymentMethod: "GOLD"})
	require.ErrorIs(t, err, settlement.ErrUnknownMethod)

	_, err = f.svc.Preview(ctx, "north", Draft{PaymentMethod: "CASH"})
	require.ErrorIs(t, err, catalog.ErrEnrollmentRequired)
}

func TestSettleSubmitsConfirmedRequest(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p, err := f.svc.Preview(ctx, "north", cardDraft())
	require.NoError(t, err)
	require.Equal(t, "843.33", p.Request.Total.String())

	receipt, err := f.svc.Settle(ctx, audit.Source{ActorID: "cashier-7"}, "north", "req-1", cardDraft(), p.Confirmation)
	require.NoError(t, err)
	require.Equal(t, "RCPT-20260601-0000000A", receipt.Ref)
	require.Equal(t, "843.33", receipt.Total.String())

	require.Equal(t, 1, f.submitter.count())
	sub := f.submitter.calls[0]
	require.Equal(t, "req-1", sub.ClientRequestID)
	require.Equal(t, "cashier-7", sub.CashierID)
	require.Equal(t, p.Confirmation, sub.Fingerprint)
	require.True(t, sub.Request.Equal(p.Request))

	require.Equal(t, []string{"settlement.create"}, f.audit.actions)
	require.Equal(t, []string{events.TopicSettlementCompleted}, f.events.topics)
	require.False(t, f.redis.Exists("north:settle:enr-1"), "lock must be released")
}

func TestSettleRejectsStaleConfirmation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p, err := f.svc.Preview(ctx, "north", cardDraft())
	require.NoError(t, err)

	f.catalog.setAmount("bus-jul", "900.00")
	_, err = f.svc.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-1", cardDraft(), p.Confirmation)
	require.ErrorIs(t, err, ErrStaleConfirmation)
	require.Zero(t, f.submitter.count())
	require.Empty(t, f.events.topics)

	// a changed draft is stale as well
	d := cardDraft()
	d.PaymentMethod = "CASH"
	_, err = f.svc.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-1", d, p.Confirmation)
	require.ErrorIs(t, err, ErrStaleConfirmation)
}

func TestSettleRejectsWhileAnotherSubmissionRuns(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p, err := f.svc.Preview(ctx, "north", cardDraft())
	require.NoError(t, err)

	f.submitter.block = make(chan struct{})
	f.submitter.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-1", cardDraft(), p.Confirmation)
		done <- err
	}()

	select {
	case <-f.submitter.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never started")
	}
	second := *f.svc
	second.Submitter = &fakeSubmitter{}
	_, err = second.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-2", cardDraft(), p.Confirmation)
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(f.submitter.block)
	require.NoError(t, <-done)
	require.Equal(t, 1, f.submitter.count())
}

func TestSettleFailureKeepsDraftUsable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	d := cardDraft()
	p, err := f.svc.Preview(ctx, "north", d)
	require.NoError(t, err)

	f.submitter.err = &SubmissionError{Submitter: "remote", StatusCode: 503, Message: "ledger down"}
	_, err = f.svc.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-1", d, p.Confirmation)
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, 503, subErr.StatusCode)
	require.Empty(t, f.audit.actions)
	require.Equal(t, []string{events.TopicSettlementFailed}, f.events.topics)

	// the same draft and confirmation settle once the ledger recovers
	f.submitter.err = nil
	receipt, err := f.svc.Settle(ctx, audit.Source{ActorID: "c"}, "north", "req-1", d, p.Confirmation)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.Ref)
	require.Equal(t, 2, f.submitter.count())
}

func TestSettleWrapsUntypedFailures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p, err := f.svc.Preview(ctx, "north", cardDraft())
	require.NoError(t, err)

	boom := errors.New("connection reset")
	f.submitter.err = boom
	_, err = f.svc.Settle(ctx, audit.Source{}, "north", "req-1", cardDraft(), p.Confirmation)
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.ErrorIs(t, err, boom)
}

func TestSettleReplayIsQuiet(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	p, err := f.svc.Preview(ctx, "north", cardDraft())
	require.NoError(t, err)

	f.submitter.receipt = Receipt{Ref: "RCPT-20260601-AAAAAAAA", Replayed: true}
	receipt, err := f.svc.Settle(ctx, audit.Source{}, "north", "req-1", cardDraft(), p.Confirmation)
	require.NoError(t, err)
	require.True(t, receipt.Replayed)
	require.Empty(t, f.audit.actions)
	require.Empty(t, f.events.topics)
}

func TestListRequiresEnrollment(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.Settlements = memLister{records: []Record{{ID: "s1", EnrollmentID: "enr-1"}, {ID: "s2", EnrollmentID: "enr-2"}}}

	_, err := f.svc.List(context.Background(), "north", "", 10, 0)
	require.ErrorIs(t, err, catalog.ErrEnrollmentRequired)

	records, err := f.svc.List(context.Background(), "north", "enr-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "s1", records[0].ID)
}
