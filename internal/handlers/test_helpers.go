package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calebwray/vaultgate/internal/middleware"
	"github.com/calebwray/vaultgate/internal/models"
	"github.com/calebwray/vaultgate/internal/services"
)

// MockAuthEngine implements AuthEngine for testing
type MockAuthEngine struct {
	AuthenticateFunc         func(ctx context.Context, attempt models.AuthAttempt) models.AuthResult
	LogoutFunc               func(ctx context.Context) error
	GetActiveSessionFunc     func(ctx context.Context) (*models.Session, error)
	SetSessionTimeoutFunc    func(minutes int)
	SetExpiryWarningTimeFunc func(seconds int)
}

func (m *MockAuthEngine) Authenticate(ctx context.Context, attempt models.AuthAttempt) models.AuthResult {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, attempt)
	}
	return models.AuthResult{Success: false, Error: models.CodeAuthError}
}

func (m *MockAuthEngine) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockAuthEngine) GetActiveSession(ctx context.Context) (*models.Session, error) {
	if m.GetActiveSessionFunc != nil {
		return m.GetActiveSessionFunc(ctx)
	}
	return nil, models.ErrNoSession
}

func (m *MockAuthEngine) SetSessionTimeout(minutes int) {
	if m.SetSessionTimeoutFunc != nil {
		m.SetSessionTimeoutFunc(minutes)
	}
}

func (m *MockAuthEngine) SetExpiryWarningTime(seconds int) {
	if m.SetExpiryWarningTimeFunc != nil {
		m.SetExpiryWarningTimeFunc(seconds)
	}
}

// MockRegistrationService implements RegistrationService for testing
type MockRegistrationService struct {
	RegisterFunc func(ctx context.Context, username string, opts services.RegisterOptions) error
}

func (m *MockRegistrationService) Register(ctx context.Context, username string, opts services.RegisterOptions) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, opts)
	}
	return nil
}

// MockEnrollmentService implements EnrollmentService for testing
type MockEnrollmentService struct {
	SetPINFunc              func(ctx context.Context, username, pin string) error
	SetupTOTPFunc           func(ctx context.Context, username string) (*models.TOTPEnrollment, error)
	VerifyTOTPSetupFunc     func(ctx context.Context, username, code string) error
	SetSecurityQuestionFunc func(ctx context.Context, username, question, answer string) error
	EnableRecoveryFunc      func(ctx context.Context, username, email, phone string) error
}

func (m *MockEnrollmentService) SetPIN(ctx context.Context, username, pin string) error {
	if m.SetPINFunc != nil {
		return m.SetPINFunc(ctx, username, pin)
	}
	return nil
}

func (m *MockEnrollmentService) SetupTOTP(ctx context.Context, username string) (*models.TOTPEnrollment, error) {
	if m.SetupTOTPFunc != nil {
		return m.SetupTOTPFunc(ctx, username)
	}
	return &models.TOTPEnrollment{}, nil
}

func (m *MockEnrollmentService) VerifyTOTPSetup(ctx context.Context, username, code string) error {
	if m.VerifyTOTPSetupFunc != nil {
		return m.VerifyTOTPSetupFunc(ctx, username, code)
	}
	return nil
}

func (m *MockEnrollmentService) SetSecurityQuestion(ctx context.Context, username, question, answer string) error {
	if m.SetSecurityQuestionFunc != nil {
		return m.SetSecurityQuestionFunc(ctx, username, question, answer)
	}
	return nil
}

func (m *MockEnrollmentService) EnableRecovery(ctx context.Context, username, email, phone string) error {
	if m.EnableRecoveryFunc != nil {
		return m.EnableRecoveryFunc(ctx, username, email, phone)
	}
	return nil
}

// MockDeviceRegistry implements DeviceRegistry for testing
type MockDeviceRegistry struct {
	GetTrustedDevicesFunc   func(ctx context.Context, username string) ([]models.TrustedDevice, error)
	RemoveTrustedDeviceFunc func(ctx context.Context, username, fingerprint string) (bool, error)
}

func (m *MockDeviceRegistry) GetTrustedDevices(ctx context.Context, username string) ([]models.TrustedDevice, error) {
	if m.GetTrustedDevicesFunc != nil {
		return m.GetTrustedDevicesFunc(ctx, username)
	}
	return []models.TrustedDevice{}, nil
}

func (m *MockDeviceRegistry) RemoveTrustedDevice(ctx context.Context, username, fingerprint string) (bool, error) {
	if m.RemoveTrustedDeviceFunc != nil {
		return m.RemoveTrustedDeviceFunc(ctx, username, fingerprint)
	}
	return false, nil
}

// newJSONRequest builds a request with a JSON body.
func newJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// asUser stamps the request context the way SessionAuth does.
func asUser(req *http.Request, username string) *http.Request {
	return req.WithContext(middleware.WithUsername(req.Context(), username))
}

// decodeBody decodes a JSON response body into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
