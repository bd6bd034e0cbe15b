package logout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/scan-gate/internal/http/middlewarectx"
	"github.com/magabrotheeeer/scan-gate/internal/models"
)

type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Logout(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

func TestLogoutHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	caller := models.ResolvedIdentity{
		Kind:     models.KindAuthenticated,
		Identity: models.AuthenticatedIdentity("acc-1"),
		Tier:     models.TierAuthenticatedFree,
	}

	tests := []struct {
		name           string
		caller         *models.ResolvedIdentity
		setupMock      func(*MockRevoker)
		expectedStatus int
		clearsCookie   bool
	}{
		{
			name:   "session revoked",
			caller: &caller,
			setupMock: func(m *MockRevoker) {
				m.On("Logout", mock.Anything, "acc-1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			clearsCookie:   true,
		},
		{
			name:   "store unavailable",
			caller: &caller,
			setupMock: func(m *MockRevoker) {
				m.On("Logout", mock.Anything, "acc-1").Return(errors.New("store unavailable")).Once()
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "anonymous caller",
			caller:         &models.ResolvedIdentity{Kind: models.KindAnonymous, Identity: models.AnonymousIdentity("x")},
			setupMock:      func(*MockRevoker) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockRevoker)
			tt.setupMock(m)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			if tt.caller != nil {
				req = req.WithContext(middlewarectx.WithCaller(req.Context(), *tt.caller))
			}
			rr := httptest.NewRecorder()

			New(logger, m, false).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.clearsCookie {
				cookies := rr.Result().Cookies()
				require.Len(t, cookies, 1)
				assert.Equal(t, middlewarectx.SessionTokenName, cookies[0].Name)
				assert.Equal(t, -1, cookies[0].MaxAge)
			}
			m.AssertExpectations(t)
		})
	}
}
