package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeUnauthorized        = "UNAUTHORIZED"
	ErrorCodeForbidden           = "FORBIDDEN"
	ErrorCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrorCodeSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	ErrorCodeOracleUnavailable   = "ORACLE_UNAVAILABLE"
	ErrorCodeLedgerConflict      = "LEDGER_CONFLICT"
	ErrorCodeNotFound            = "NOT_FOUND"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
)

// statusForCode mirrors the router's error kind to HTTP status mapping.
var statusForCode = map[string]int{
	ErrorCodeInvalidRequest:      http.StatusBadRequest,
	ErrorCodeUnauthorized:        http.StatusUnauthorized,
	ErrorCodeForbidden:           http.StatusForbidden,
	ErrorCodeInsufficientBalance: http.StatusBadRequest,
	ErrorCodeSlippageExceeded:    http.StatusConflict,
	ErrorCodeOracleUnavailable:   http.StatusServiceUnavailable,
	ErrorCodeLedgerConflict:      http.StatusConflict,
	ErrorCodeNotFound:            http.StatusNotFound,
	ErrorCodeInternalError:       http.StatusInternalServerError,
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	AbortCode uint16 `json:"abort_code"`
}

// AssertErrorCode checks both the HTTP status and the error code body.
func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	status, ok := statusForCode[expectedCode]
	if !ok {
		status = http.StatusInternalServerError
	}
	AssertHTTPStatus(t, resp, status)

	var errResp errorResponse
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q (%s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertAbortCode checks the numeric abort code carried by a domain error.
func AssertAbortCode(t *testing.T, resp *httptest.ResponseRecorder, expected uint16) {
	t.Helper()
	var errResp errorResponse
	DecodeJSON(t, resp, &errResp)
	if errResp.AbortCode != expected {
		t.Fatalf("expected abort code %d, got %d", expected, errResp.AbortCode)
	}
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.Code, resp.Body.String())
	}
}
