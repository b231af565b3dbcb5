package payment

import (
	"context"
	"errors"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

// SnapClient is the subset of snap.Client used for card charges.
type SnapClient interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// NewSnapClient configures a Midtrans Snap client.
func NewSnapClient(serverKey string, sandbox bool) *snap.Client {
	var c snap.Client
	env := midtrans.Production
	if sandbox {
		env = midtrans.Sandbox
	}
	c.New(serverKey, env)
	return &c
}

// CardGateway opens a Snap transaction for CARD settlements before handing
// the submission to Next. Other methods pass straight through.
type CardGateway struct {
	Snap SnapClient
	Next Submitter
}

// Submit implements Submitter.
func (g CardGateway) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if g.Next == nil {
		return Receipt{}, submissionFailed("card", errors.New("card gateway has no ledger"))
	}
	if g.Snap == nil || sub.Request.PaymentMethod != settlement.MethodCard {
		return g.Next.Submit(ctx, sub)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, submissionFailed("card", err)
	}
	charge := snapCharge(sub.Request)
	orderID := sub.ClientRequestID
	if orderID == "" {
		orderID = sub.Fingerprint[:min(len(sub.Fingerprint), 32)]
	}
	resp, mErr := g.Snap.CreateTransaction(&snap.Request{
		TransactionDetails: midtrans.TransactionDetails{OrderID: orderID, GrossAmt: charge.gross},
		Items:              &charge.items,
		CustomField1:       sub.EnrollmentID,
	})
	if mErr != nil {
		return Receipt{}, &SubmissionError{Submitter: "card", StatusCode: mErr.StatusCode, Message: mErr.Message, Err: mErr.RawError}
	}
	if resp == nil || resp.Token == "" {
		return Receipt{}, submissionFailed("card", errors.New("snap returned no token"))
	}
	sub.GatewayRef = "snap:" + resp.Token
	charged := money.FromMinor(charge.gross * money.MinorUnits)
	sub.GatewayAmount = &charged
	return g.Next.Submit(ctx, sub)
}

type snapOrder struct {
	gross int64
	items []midtrans.ItemDetails
}

// snapCharge expresses req in Snap's whole currency units. Snap's
// gross_amount is an integer, so the total is rounded half-up and a
// "rounding" item absorbs the paise so the items still add up to the gross.
// The charged amount travels with the submission as GatewayAmount.
func snapCharge(req settlement.Request) snapOrder {
	order := snapOrder{
		gross: req.Total.RoundMajor().Minor() / money.MinorUnits,
		items: make([]midtrans.ItemDetails, 0, len(req.LineItems)+2),
	}
	var itemized int64
	add := func(item midtrans.ItemDetails, amount money.Money) {
		item.Price = amount.RoundMajor().Minor() / money.MinorUnits
		item.Qty = 1
		itemized += item.Price
		order.items = append(order.items, item)
	}
	for _, line := range req.LineItems {
		add(midtrans.ItemDetails{ID: line.SourceID, Name: string(line.Category), Category: string(line.Category)}, line.Amount)
	}
	if req.Surcharge.IsPositive() {
		add(midtrans.ItemDetails{ID: "surcharge", Name: "Card surcharge"}, req.Surcharge)
	}
	if diff := order.gross - itemized; diff != 0 {
		order.items = append(order.items, midtrans.ItemDetails{ID: "rounding", Name: "Rounding", Price: diff, Qty: 1})
	}
	return order
}
