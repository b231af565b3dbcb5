package settlement

import "github.com/noah-isme/backend-sekolah/internal/money"

// SummaryLine is one row of the confirmation summary.
type SummaryLine struct {
	SourceID string `json:"sourceId"`
	Label    string `json:"label"`
	Amount   string `json:"amount"`
}

// Summary is the display form of a Request. It is derived only from the
// Request so what the cashier confirms is what gets submitted.
type Summary struct {
	Lines         []SummaryLine `json:"lines"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Subtotal      string        `json:"subtotal"`
	Surcharge     string        `json:"surcharge"`
	Total         string        `json:"total"`
	Remarks       string        `json:"remarks,omitempty"`
}

// Summarize formats req for locale. labels supplies catalog labels keyed by
// source id; the other fee is labelled with its reason.
func Summarize(req Request, labels map[string]string, locale string) Summary {
	lines := make([]SummaryLine, 0, len(req.LineItems))
	for _, l := range req.LineItems {
		label := labels[l.SourceID]
		if l.SourceID == OtherSourceID && l.Reason != "" {
			label = l.Reason
		}
		if label == "" {
			label = l.SourceID
		}
		lines = append(lines, SummaryLine{SourceID: l.SourceID, Label: label, Amount: money.Format(l.Amount, locale)})
	}
	return Summary{
		Lines:         lines,
		PaymentMethod: req.PaymentMethod,
		Subtotal:      money.Format(req.Subtotal, locale),
		Surcharge:     money.Format(req.Surcharge, locale),
		Total:         money.Format(req.Total, locale),
		Remarks:       req.Remarks,
	}
}
