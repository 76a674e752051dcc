package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("expected status %d, got %d", http.StatusGatewayTimeout, err.HTTPStatus)
	}
}

func TestAppError_NotFound_Service(t *testing.T) {
	err := NotFound("service", "billing")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", err.Code)
	}
	if err.Details["id"] != "billing" {
		t.Errorf("expected id=billing, got %v", err.Details["id"])
	}
	if err.Retryable {
		t.Error("NotFound should not be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("service", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_RegistryUnavailable_NotRetryable(t *testing.T) {
	err := RegistryUnavailable(3)
	if err.Code != ErrCodeRegistryUnavailable {
		t.Errorf("expected REGISTRY_UNAVAILABLE, got %s", err.Code)
	}
	if err.Retryable {
		t.Error("REGISTRY_UNAVAILABLE must not be retryable")
	}
	if err.Details["configured"] != 3 {
		t.Errorf("expected configured=3, got %v", err.Details["configured"])
	}
}

func TestAppError_RegistrationFailed_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("agent said 500")
	err := RegistrationFailed("material", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if !strings.Contains(err.Error(), "agent said 500") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{}
	err.WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected key=value, got %v", err.Details["key"])
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"ServiceUnavailable", ServiceUnavailable("registry"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable, true},
		{"ConnectionFailed", ConnectionFailed("10.0.0.1:8500", nil), ErrCodeConnectionFailed, http.StatusServiceUnavailable, true},
		{"Timeout", Timeout("discover"), ErrCodeTimeout, http.StatusGatewayTimeout, true},
		{"MissingField", MissingField("name"), ErrCodeMissingField, http.StatusBadRequest, false},
		{"UnknownStrategy", UnknownStrategy("least_conn"), ErrCodeUnknownStrategy, http.StatusBadRequest, false},
		{"DeregistrationFailed", DeregistrationFailed("svc_1", "a:8500", nil), ErrCodeDeregistrationFailed, http.StatusBadGateway, true},
		{"ExternalServiceError", ExternalServiceError("registry agent", nil), ErrCodeExternalService, http.StatusBadGateway, true},
		{"Validation", Validation("bad input"), ErrCodeInvalidInput, http.StatusBadRequest, false},
		{"Internal", Internal(nil), ErrCodeInternal, http.StatusInternalServerError, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
		})
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	resp := UnknownStrategy("sticky").ToResponse()
	if resp.Error.Code != ErrCodeUnknownStrategy {
		t.Errorf("expected UNKNOWN_STRATEGY in response, got %s", resp.Error.Code)
	}
	if resp.Error.Details["strategy"] != "sticky" {
		t.Errorf("expected strategy=sticky in response details, got %v", resp.Error.Details["strategy"])
	}
}

func TestAppError_AsAppError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Timeout("register"))

	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if got.Code != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", got.Code)
	}
	if IsAppError(fmt.Errorf("plain")) {
		t.Error("expected IsAppError to return false for plain error")
	}
}

func TestHasCode_WalksCauseChain(t *testing.T) {
	err := RegistrationFailed("material", Timeout("register"))

	if !HasCode(err, ErrCodeRegistrationFailed) {
		t.Error("expected outer code to match")
	}
	if !HasCode(err, ErrCodeTimeout) {
		t.Error("expected nested TIMEOUT cause to match")
	}
	if HasCode(err, ErrCodeNotFound) {
		t.Error("did not expect NOT_FOUND")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeTimeout) {
		t.Error("plain errors carry no code")
	}
	if HasCode(nil, ErrCodeTimeout) {
		t.Error("nil carries no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("x: %w", ExternalServiceError("registry agent", nil))) {
		t.Error("expected wrapped external error to be retryable")
	}
	if IsRetryable(NotFound("service", "x")) {
		t.Error("NotFound should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are not retryable")
	}
}
