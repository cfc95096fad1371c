package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/metrics"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
)

// RequestPasswordReset never reports whether the email belongs to an account.
// Every call takes at least Settings.RecoveryMinDuration.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) {
	deadline := time.Now().Add(s.Settings.RecoveryMinDuration)
	defer waitUntil(ctx, deadline)

	email = domain.NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password", "email", email)

	if err := s.requestReset(ctx, email); err != nil {
		l.Error("reset_request_failed", "error", err)
		metrics.PasswordResetTotal.WithLabelValues("request", metrics.ResultError).Inc()
		return
	}
	metrics.PasswordResetTotal.WithLabelValues("request", metrics.ResultSuccess).Inc()
}

func (s *AuthService) requestReset(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password", "email", email)
	if email == "" {
		return nil
	}

	acc, err := s.Store.FindUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		l.Info("reset_request_ignored", "reason", "unknown account")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if !acc.Status.CanLogin() {
		l.Info("reset_request_ignored", "reason", "account not active")
		return nil
	}

	otp, err := domain.NewOTP()
	if err != nil {
		return err
	}
	resetToken, err := domain.NewResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.Settings.OTPTTL)

	err = s.Store.CreateResetRecord(ctx, domain.ResetRecord{
		Email:     acc.Email,
		CodeHash:  domain.Sha256Hex(otp),
		TokenHash: domain.Sha256Hex(resetToken),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("store reset record: %w", err)
	}

	s.publish(ctx, s.Settings.NotificationTopic, notify.EventPasswordResetRequested, acc.Email, notify.PasswordResetRequested{
		Email:      acc.Email,
		OTP:        otp,
		ResetToken: resetToken,
		ExpiresAt:  expiresAt,
	})
	l.Info("reset_requested", "user_id", acc.ID)
	return nil
}

func waitUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// VerifyOTP consumes the pending code for email. Reuse, expiry, a wrong code
// or an unknown email all give false. Repeated wrong codes burn the record.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (bool, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	l := logging.FromContext(ctx).With("svc", "auth.verify_otp", "email", email)

	if email == "" || code == "" {
		metrics.OTPVerifyTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return false, nil
	}

	now := s.now()
	rec, err := s.Store.LatestPendingReset(ctx, email, now, s.Settings.OTPMaxAttempts)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.OTPVerifyTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return false, nil
	}
	if err != nil {
		l.Error("otp_verify_failed", "error", err)
		return false, fmt.Errorf("find reset record: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(rec.CodeHash), []byte(domain.Sha256Hex(code))) != 1 {
		burnt, err := s.Store.RecordOTPFailure(ctx, rec.ID, s.Settings.OTPMaxAttempts)
		if err != nil {
			l.Error("otp_verify_failed", "error", err)
			return false, fmt.Errorf("record otp failure: %w", err)
		}
		l.Warn("otp_mismatch", "burnt", burnt)
		metrics.OTPVerifyTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return false, nil
	}

	ok, err := s.Store.MarkOTPVerified(ctx, rec.ID, now, s.Settings.OTPMaxAttempts)
	if err != nil {
		l.Error("otp_verify_failed", "error", err)
		return false, fmt.Errorf("mark otp verified: %w", err)
	}
	if !ok {
		metrics.OTPVerifyTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return false, nil
	}

	l.Info("otp_verified")
	metrics.OTPVerifyTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return true, nil
}

// ResetPassword completes recovery for a reset token whose OTP was verified.
// Nothing changes unless every check passes.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		metrics.PasswordResetTotal.WithLabelValues("reset", metrics.ResultRejected).Inc()
		return ErrInvalidResetToken
	}
	if err := CheckPasswordPolicy("newPassword", newPassword); err != nil {
		metrics.PasswordResetTotal.WithLabelValues("reset", metrics.ResultRejected).Inc()
		return fmt.Errorf("%w: %w", ErrInvalidResetToken, err)
	}

	pwHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		l.Error("reset_failed", "error", err)
		return err
	}

	id, err := s.Store.CompleteReset(ctx, domain.Sha256Hex(resetToken), pwHash, s.now())
	if errors.Is(err, repo.ErrResetInvalid) {
		l.Warn("reset_failed", "reason", "reset token not usable")
		metrics.PasswordResetTotal.WithLabelValues("reset", metrics.ResultRejected).Inc()
		return ErrInvalidResetToken
	}
	if err != nil {
		l.Error("reset_failed", "error", err)
		metrics.PasswordResetTotal.WithLabelValues("reset", metrics.ResultError).Inc()
		return fmt.Errorf("complete reset: %w", err)
	}

	l.Info("password_reset", "user_id", id.ID, "email", id.Email)
	metrics.PasswordResetTotal.WithLabelValues("reset", metrics.ResultSuccess).Inc()
	s.publish(ctx, s.Settings.UserEventsTopic, notify.EventPasswordResetCompleted, id.Email, notify.UserEvent{
		UserID: id.ID.String(),
		Email:  id.Email,
	})
	return nil
}

// ChangePassword requires the current password. All refresh tokens of the
// account are revoked and older access tokens stop validating.
func (s *AuthService) ChangePassword(ctx context.Context, id *domain.Identity, currentPassword, newPassword string) error {
	if id == nil {
		return ErrInvalidToken
	}
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "user_id", id.ID)

	acc, err := s.Store.FindUserByID(ctx, id.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAuthenticationFailed
	}
	if err != nil {
		l.Error("change_password_failed", "error", err)
		return fmt.Errorf("find account: %w", err)
	}
	if !s.Hasher.Verify(currentPassword, acc.PasswordHash) {
		l.Warn("change_password_failed", "reason", "current password mismatch")
		return ErrAuthenticationFailed
	}
	if err := CheckPasswordPolicy("newPassword", newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return invalidField("newPassword", "must differ from the current password")
	}

	pwHash, err := s.Hasher.Hash(newPassword)
	if err != nil {
		l.Error("change_password_failed", "error", err)
		return err
	}
	if err := s.Store.SetPassword(ctx, acc.ID, pwHash, s.now()); err != nil {
		l.Error("change_password_failed", "error", err)
		return fmt.Errorf("set password: %w", err)
	}

	l.Info("password_changed")
	s.publish(ctx, s.Settings.UserEventsTopic, notify.EventPasswordChanged, acc.Email, notify.UserEvent{
		UserID: acc.ID.String(),
		Email:  acc.Email,
	})
	return nil
}
