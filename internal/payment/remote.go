package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-sekolah/internal/resilience"
)

// RemoteSubmitter forwards settlements to an external ERP ledger.
type RemoteSubmitter struct {
	Client *resilience.HTTPClient
	URL    string
	Token  string
}

type remoteReceipt struct {
	Receipt
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Submit posts the submission once; the caller decides whether to retry.
func (s RemoteSubmitter) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if s.Client == nil || strings.TrimSpace(s.URL) == "" {
		return Receipt{}, submissionFailed("remote", errors.New("remote submitter not configured"))
	}
	headers := map[string]string{"Idempotency-Key": sub.ClientRequestID}
	if s.Token != "" {
		headers["Authorization"] = "Bearer " + s.Token
	}
	resp, err := s.Client.PostJSON(ctx, s.URL, sub, headers)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return Receipt{}, &SubmissionError{Submitter: "remote", StatusCode: statusErr.StatusCode, Err: err}
		}
		return Receipt{}, submissionFailed("remote", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, submissionFailed("remote", fmt.Errorf("read response: %w", err))
	}
	var out remoteReceipt
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode >= http.StatusBadRequest {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return Receipt{}, &SubmissionError{Submitter: "remote", StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Receipt{}, submissionFailed("remote", fmt.Errorf("decode receipt: %w", decodeErr))
	}
	if out.Ref == "" {
		return Receipt{}, submissionFailed("remote", errors.New("receipt reference missing from response"))
	}
	if out.Total.IsZero() {
		out.Total = sub.Request.Total
	}
	return out.Receipt, nil
}
