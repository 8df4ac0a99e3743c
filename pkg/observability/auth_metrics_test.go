package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuthMetricsExportedThroughPrometheus(t *testing.T) {
	provider, handler, err := InitTelemetry("auth-test")
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewAuthMetrics(provider.Meter("auth"))
	require.NoError(t, err)

	ctx := context.Background()
	m.LoginAttempt(ctx, ResultInvalidCredentials)
	m.LoginAttempt(ctx, ResultSuccess)
	m.Lockout(ctx)
	m.RefreshRotation(ctx, ResultReused)
	m.PasswordReset(ctx, StageRequested)
	m.Registration(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "auth_login_attempts")
	assert.Contains(t, out, `result="invalid_credentials"`)
	assert.Contains(t, out, "auth_lockouts")
	assert.Contains(t, out, `result="reused"`)
	assert.Contains(t, out, `stage="requested"`)
	assert.Contains(t, out, "auth_registrations")
}

func TestNilAuthMetricsIsNoop(t *testing.T) {
	var m *AuthMetrics
	assert.NotPanics(t, func() {
		m.LoginAttempt(context.Background(), ResultSuccess)
		m.Lockout(context.Background())
		m.RefreshRotation(context.Background(), ResultSuccess)
		m.PasswordReset(context.Background(), StageCompleted)
		m.Registration(context.Background())
	})
}

func TestNewAuthMetricsWithoutMeter(t *testing.T) {
	m, err := NewAuthMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestInitLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := InitLogger(env, "")
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	logger, err := InitLogger("production", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = InitLogger("production", "loud")
	assert.Error(t, err)
}
