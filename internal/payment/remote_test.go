package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sekolah/internal/money"
	"github.com/noah-isme/backend-sekolah/internal/resilience"
	"github.com/noah-isme/backend-sekolah/internal/settlement"
)

func remoteSubmission() Submission {
	return Submission{
		ClientRequestID: "req-9",
		BranchID:        "north",
		EnrollmentID:    "enr-1",
		CashierID:       "cashier-1",
		Fingerprint:     "ab",
		Request: settlement.Request{
			PaymentMethod: settlement.MethodCash,
			Subtotal:      money.MustParse("500"),
			Total:         money.MustParse("500"),
		},
	}
}

func TestRemoteSubmitterDecodesReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "req-9", r.Header.Get("Idempotency-Key"))
		require.Equal(t, "Bearer erp-token", r.Header.Get("Authorization"))
		var sub Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		require.Equal(t, "enr-1", sub.EnrollmentID)
		require.Equal(t, "500.00", sub.Request.Total.String())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"receiptRef":"ERP-42","receiptDocumentHandle":"erp/42.pdf","settledAt":"2026-06-01T09:00:00Z"}`))
	}))
	defer srv.Close()

	s := RemoteSubmitter{Client: resilience.NewHTTPClient("erp", time.Second), URL: srv.URL, Token: "erp-token"}
	receipt, err := s.Submit(context.Background(), remoteSubmission())
	require.NoError(t, err)
	require.Equal(t, "ERP-42", receipt.Ref)
	require.Equal(t, "erp/42.pdf", receipt.DocumentHandle)
	require.Equal(t, "500.00", receipt.Total.String())
}

func TestRemoteSubmitterReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"LEDGER_CLOSED","message":"ledger is closed for the day"}}`))
	}))
	defer srv.Close()

	s := RemoteSubmitter{Client: resilience.NewHTTPClient("erp", time.Second), URL: srv.URL}
	_, err := s.Submit(context.Background(), remoteSubmission())
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, http.StatusUnprocessableEntity, subErr.StatusCode)
	require.Equal(t, "ledger is closed for the day", subErr.Message)
}

func TestRemoteSubmitterDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := RemoteSubmitter{Client: resilience.NewHTTPClient("erp", time.Second), URL: srv.URL}
	_, err := s.Submit(context.Background(), remoteSubmission())
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, http.StatusServiceUnavailable, subErr.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestRemoteSubmitterRequiresReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := RemoteSubmitter{Client: resilience.NewHTTPClient("erp", time.Second), URL: srv.URL}
	_, err := s.Submit(context.Background(), remoteSubmission())
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))

	_, err = RemoteSubmitter{}.Submit(context.Background(), remoteSubmission())
	require.True(t, errors.As(err, &subErr))
}
