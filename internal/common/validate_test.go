package common

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleReq struct {
	EnrollmentID string `json:"enrollmentId" validate:"required"`
	Method       string `json:"paymentMethod" validate:"required,oneof=CASH CARD"`
}

func TestDecodeJSONValidation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"paymentMethod":"GOLD"}`))
	var dst sampleReq
	err := DecodeJSON(req, &dst)
	require.Error(t, err)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "required", details["enrollmentId"])
	require.Equal(t, "oneof", details["paymentMethod"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"enrollmentId":"e1","paymentMethod":"CASH","x":1}`))
	var dst sampleReq
	err := DecodeJSON(req, &dst)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewAppError("EMPTY_SELECTION", "select at least one item", http.StatusUnprocessableEntity, nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"error":{"code":"EMPTY_SELECTION","message":"select at least one item"}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteError(rr, http.ErrServerClosed)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
