package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels recorded on auth counters.
const (
	ResultSuccess            = "success"
	ResultInvalidCredentials = "invalid_credentials"
	ResultLocked             = "locked"
	ResultInvalidToken       = "invalid_token"
	ResultReused             = "reused"
	ResultError              = "error"

	StageRequested = "requested"
	StageCompleted = "completed"
	StageRejected  = "rejected"
)

// AuthMetrics holds the security counters of the authentication core. A nil
// *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	loginAttempts    metric.Int64Counter
	lockouts         metric.Int64Counter
	refreshRotations metric.Int64Counter
	passwordResets   metric.Int64Counter
	registrations    metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter. A nil meter falls
// back to a no-op implementation.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("auth")
	}

	m := &AuthMetrics{}
	var err error

	if m.loginAttempts, err = meter.Int64Counter("auth_login_attempts_total",
		metric.WithDescription("Login attempts by result")); err != nil {
		return nil, fmt.Errorf("failed to create login counter: %w", err)
	}
	if m.lockouts, err = meter.Int64Counter("auth_lockouts_total",
		metric.WithDescription("Accounts locked after repeated failures")); err != nil {
		return nil, fmt.Errorf("failed to create lockout counter: %w", err)
	}
	if m.refreshRotations, err = meter.Int64Counter("auth_refresh_rotations_total",
		metric.WithDescription("Refresh token exchanges by result")); err != nil {
		return nil, fmt.Errorf("failed to create refresh counter: %w", err)
	}
	if m.passwordResets, err = meter.Int64Counter("auth_password_resets_total",
		metric.WithDescription("Password reset flow events by stage")); err != nil {
		return nil, fmt.Errorf("failed to create reset counter: %w", err)
	}
	if m.registrations, err = meter.Int64Counter("auth_registrations_total",
		metric.WithDescription("Successful registrations")); err != nil {
		return nil, fmt.Errorf("failed to create registration counter: %w", err)
	}

	return m, nil
}

func (m *AuthMetrics) LoginAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) Lockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

func (m *AuthMetrics) RefreshRotation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.refreshRotations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *AuthMetrics) PasswordReset(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.passwordResets.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *AuthMetrics) Registration(ctx context.Context) {
	if m == nil {
		return
	}
	m.registrations.Add(ctx, 1)
}
