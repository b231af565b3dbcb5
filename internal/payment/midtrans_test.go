package payment

import (
	"context"
	"errors"
	"testing"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/catalog"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

type fakeSnap struct {
	requests []*snap.Request
	token    string
	err      *midtrans.Error
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &snap.Response{Token: f.token}, nil
}

func cardSubmission(t *testing.T, amount string) Submission {
	t.Helper()
	sel := settlement.NewSelection([]catalog.FeeLineItem{feeItem("tuition-1", catalog.CategoryTuitionFee, amount)})
	require.NoError(t, sel.Toggle("tuition-1", true))
	req, err := settlement.Compose(sel, nil, settlement.MethodCard, "")
	require.NoError(t, err)
	return Submission{ClientRequestID: "req-1", BranchID: "north", EnrollmentID: "enr-1", Fingerprint: req.Fingerprint(), Request: req}
}

func TestCardGatewayOpensSnapTransaction(t *testing.T) {
	snapClient := &fakeSnap{token: "tok-1"}
	next := &fakeSubmitter{}
	g := CardGateway{Snap: snapClient, Next: next}

	// 1000.00 + 1.2% = 1012.00
	receipt, err := g.Submit(context.Background(), cardSubmission(t, "1000.00"))
	require.NoError(t, err)
	require.Len(t, snapClient.requests, 1)
	sent := snapClient.requests[0]
	require.Equal(t, "req-1", sent.TransactionDetails.OrderID)
	require.Equal(t, int64(1012), sent.TransactionDetails.GrossAmt)
	require.Len(t, *sent.Items, 2)
	require.Equal(t, int64(12), (*sent.Items)[1].Price)

	require.Equal(t, 1, next.count())
	require.Equal(t, "snap:tok-1", next.calls[0].GatewayRef)
	require.Equal(t, "snap:tok-1:receipts/north/"+receipt.Ref+".pdf", receipt.DocumentHandle)
}

func TestCardGatewayPassesOtherMethodsThrough(t *testing.T) {
	snapClient := &fakeSnap{token: "tok-1"}
	next := &fakeSubmitter{}
	sub := remoteSubmission()
	_, err := CardGateway{Snap: snapClient, Next: next}.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Empty(t, snapClient.requests)
	require.Empty(t, next.calls[0].GatewayRef)
}

func TestCardGatewayFailures(t *testing.T) {
	next := &fakeSubmitter{}
	snapClient := &fakeSnap{err: &midtrans.Error{StatusCode: 401, Message: "unauthorized", RawError: errors.New("401")}}
	_, err := CardGateway{Snap: snapClient, Next: next}.Submit(context.Background(), cardSubmission(t, "1000.00"))
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, 401, subErr.StatusCode)
	require.Zero(t, next.count())
}

func TestCardGatewayChargesPaiseTotals(t *testing.T) {
	snapClient := &fakeSnap{token: "tok-2"}
	next := &fakeSubmitter{}

	// 833.33 + 10.00 surcharge = 843.33, charged as 843
	_, err := CardGateway{Snap: snapClient, Next: next}.Submit(context.Background(), cardSubmission(t, "833.33"))
	require.NoError(t, err)
	require.Equal(t, 1, next.count())
	sent := snapClient.requests[0]
	require.Equal(t, int64(843), sent.TransactionDetails.GrossAmt)
	require.Equal(t, int64(843), itemTotal(*sent.Items))
	require.Equal(t, "843.33", next.calls[0].Request.Total.String())
	require.Equal(t, "843.00", next.calls[0].GatewayAmount.String())
}

func TestSnapChargeBalancesWithRoundingItem(t *testing.T) {
	sel := settlement.NewSelection([]catalog.FeeLineItem{
		feeItem("bus", catalog.CategoryTransportFee, "100.50"),
		feeItem("book", catalog.CategoryBookFee, "200.50"),
	})
	require.NoError(t, sel.Toggle("bus", true))
	require.NoError(t, sel.Toggle("book", true))
	req, err := settlement.Compose(sel, nil, settlement.MethodCard, "")
	require.NoError(t, err)
	require.Equal(t, "304.61", req.Total.String())

	order := snapCharge(req)
	require.Equal(t, int64(305), order.gross)
	require.Equal(t, order.gross, itemTotal(order.items))
	last := order.items[len(order.items)-1]
	require.Equal(t, "rounding", last.ID)
	require.Equal(t, int64(-1), last.Price)
}

func itemTotal(items []midtrans.ItemDetails) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Price * int64(it.Qty)
	}
	return sum
}
