package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rca-academy/school_mis/pkg/hash"
	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/pkg/tokens"
	"github.com/rca-academy/school_mis/services/auth/internal/authz"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/limiter"
	"github.com/rca-academy/school_mis/services/auth/internal/metrics"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
	"github.com/rca-academy/school_mis/services/auth/internal/revocation"
)

const TokenTypeBearer = "Bearer"

type Settings struct {
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	OTPTTL                time.Duration
	OTPMaxAttempts        int
	RecoveryMinDuration   time.Duration
	SelfRegistrationRoles []string
	NotificationTopic     string
	UserEventsTopic       string
}

func DefaultSettings() Settings {
	return Settings{
		AccessTTL:             time.Hour,
		RefreshTTL:            7 * 24 * time.Hour,
		OTPTTL:                10 * time.Minute,
		OTPMaxAttempts:        5,
		RecoveryMinDuration:   400 * time.Millisecond,
		SelfRegistrationRoles: []string{"STUDENT", "TEACHER", "PARENT", "GUARDIAN"},
		NotificationTopic:     "notification_events",
		UserEventsTopic:       "user_events",
	}
}

type AuthService struct {
	Store     Store
	Hasher    *hash.Hasher
	Codec     *tokens.Codec
	Resolver  *authz.Resolver
	Denylist  revocation.Denylist
	Publisher notify.Publisher
	// LoginLimiter throttles login attempts per email. Nil disables it.
	LoginLimiter *limiter.KeyedLimiter
	Settings     Settings

	events sync.WaitGroup
}

type UserSummary struct {
	ID     uuid.UUID
	Email  string
	Status domain.Status
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	AccessExp    time.Time
	RefreshExp   time.Time
	SessionID    string
	User         UserSummary
	Roles        []string
	Permissions  []string
}

func (s *AuthService) now() time.Time { return s.Codec.Now() }

// Wait blocks until in-flight event publications finish.
func (s *AuthService) Wait() { s.events.Wait() }

type mintedSession struct {
	result *AuthResult
	record domain.RefreshRecord
}

func (s *AuthService) mint(id *domain.Identity, sessionID string) (*mintedSession, error) {
	access, accessClaims, err := s.Codec.Encode(id.Email, tokens.Access, s.Settings.AccessTTL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mint access: %w", err)
	}
	refresh, refreshClaims, err := s.Codec.Encode(id.Email, tokens.Refresh, s.Settings.RefreshTTL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh: %w", err)
	}

	return &mintedSession{
		result: &AuthResult{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    TokenTypeBearer,
			ExpiresIn:    int64(s.Settings.AccessTTL / time.Second),
			AccessExp:    accessClaims.Expiry(),
			RefreshExp:   refreshClaims.Expiry(),
			SessionID:    sessionID,
			User:         UserSummary{ID: id.ID, Email: id.Email, Status: id.Status},
			Roles:        s.Resolver.RoleNames(id),
			Permissions:  s.Resolver.EffectivePermissions(id).Sorted(),
		},
		record: domain.RefreshRecord{
			JTI:       refreshClaims.ID,
			TokenHash: domain.Sha256Hex(refresh),
			UserID:    id.ID,
			SessionID: sessionID,
			ExpiresAt: refreshClaims.Expiry(),
		},
	}, nil
}

// startSession mints a new token pair under a fresh session id and persists
// the refresh token.
func (s *AuthService) startSession(ctx context.Context, id *domain.Identity) (*AuthResult, error) {
	minted, err := s.mint(id, domain.NewSessionID())
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveRefreshToken(ctx, minted.record); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return minted.result, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || password == "" {
		return nil, &ValidationError{Fields: map[string]string{"email": "is required", "password": "is required"}}
	}
	if s.LoginLimiter != nil && !s.LoginLimiter.Allow(email) {
		l.Warn("login_rate_limited")
		metrics.LoginTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrRateLimited
	}

	acc, err := s.Store.FindUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		s.Hasher.Dummy(password)
		l.Warn("login_failed", "reason", "unknown account")
		metrics.LoginTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrAuthenticationFailed
	}
	if err != nil {
		l.Error("login_failed", "error", err)
		metrics.LoginTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("find account: %w", err)
	}

	if !s.Hasher.Verify(password, acc.PasswordHash) {
		l.Warn("login_failed", "reason", "bad password")
		metrics.LoginTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrAuthenticationFailed
	}
	if !acc.Status.CanLogin() {
		l.Warn("login_failed", "reason", "account not active", "status", acc.Status)
		metrics.LoginTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, ErrAuthenticationFailed
	}

	res, err := s.startSession(ctx, &acc.Identity)
	if err != nil {
		l.Error("login_failed", "error", err)
		metrics.LoginTotal.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}

	l.Info("login_successful", "user_id", acc.ID, "session_id", res.SessionID)
	metrics.LoginTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.publish(ctx, s.Settings.UserEventsTopic, notify.EventUserLoggedIn, acc.Email, notify.UserEvent{
		UserID: acc.ID.String(),
		Email:  acc.Email,
		Roles:  res.Roles,
	})
	return res, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Codec.DecodeAs(refreshToken, tokens.Refresh)
	if err != nil {
		l.Warn("refresh_failed", "reason", err.Error())
		metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrInvalidToken
	}
	l = l.With("email", claims.Subject, "session_id", claims.SessionID)

	rec, err := s.Store.FindRefreshToken(ctx, claims.ID)
	if errors.Is(err, repo.ErrNotFound) {
		l.Warn("refresh_failed", "reason", "unknown refresh token")
		metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrInvalidToken
	}
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(domain.Sha256Hex(refreshToken))) != 1 {
		l.Warn("refresh_failed", "reason", "token hash mismatch")
		metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrInvalidToken
	}
	if rec.Revoked {
		s.revokeFamily(ctx, rec.SessionID)
		metrics.RefreshTotal.WithLabelValues(metrics.ResultReused).Inc()
		return nil, ErrInvalidToken
	}

	acc, err := s.Store.FindUserByEmail(ctx, claims.Subject)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && (!acc.Status.CanLogin() || acc.ID != rec.UserID)) {
		l.Warn("refresh_failed", "reason", "account missing or not active")
		metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrAuthenticationFailed
	}
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, fmt.Errorf("find account: %w", err)
	}

	minted, err := s.mint(&acc.Identity, rec.SessionID)
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, err
	}

	err = s.Store.RotateRefreshToken(ctx, rec.JTI, minted.record)
	switch {
	case errors.Is(err, repo.ErrRefreshReused):
		s.revokeFamily(ctx, rec.SessionID)
		metrics.RefreshTotal.WithLabelValues(metrics.ResultReused).Inc()
		return nil, ErrInvalidToken
	case errors.Is(err, repo.ErrNotFound):
		metrics.RefreshTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, ErrInvalidToken
	case err != nil:
		l.Error("refresh_failed", "error", err)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	l.Info("refresh_successful")
	metrics.RefreshTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return minted.result, nil
}

// revokeFamily kills every refresh token of a session after a retired token
// was presented again.
func (s *AuthService) revokeFamily(ctx context.Context, sessionID string) {
	l := logging.FromContext(ctx)
	n, err := s.Store.RevokeSession(ctx, sessionID)
	if err != nil {
		l.Error("refresh_reuse_detected", "session_id", sessionID, "error", err)
		return
	}
	l.Warn("refresh_reuse_detected", "session_id", sessionID, "revoked", n)
}

// Logout denylists the access token until the codec stops accepting it and
// revokes the refresh tokens of its session. It never fails.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	claims, err := s.Codec.Decode(accessToken)
	if err != nil {
		l.Info("logout_noop", "reason", "undecodable token")
		return
	}
	l = l.With("email", claims.Subject, "session_id", claims.SessionID)

	if claims.Type == tokens.Access && !s.Codec.IsExpired(claims) {
		until := claims.Expiry().Add(s.Codec.Leeway())
		if err := s.Denylist.Revoke(ctx, claims.ID, until); err != nil {
			l.Error("logout_denylist_failed", "error", err)
		}
	}
	if claims.SessionID != "" {
		if _, err := s.Store.RevokeSession(ctx, claims.SessionID); err != nil {
			l.Error("logout_revoke_session_failed", "error", err)
		}
	}
	l.Info("logout_successful")
}

// Authenticate turns an access token into the identity it was issued for.
// Any failure to prove the token still valid is a rejection.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.Identity, error) {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate")

	claims, err := s.Codec.DecodeAs(accessToken, tokens.Access)
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := s.Denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		l.Error("denylist_unavailable", "error", err)
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	acc, err := s.Store.FindUserByEmail(ctx, claims.Subject)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		l.Error("find_account_failed", "error", err)
		return nil, fmt.Errorf("find account: %w", err)
	}
	if !acc.Status.CanLogin() {
		return nil, ErrInvalidToken
	}
	if acc.PasswordChangedAt != nil && claims.Issued().Before(acc.PasswordChangedAt.Truncate(time.Second)) {
		return nil, ErrInvalidToken
	}

	id := acc.Identity
	return &id, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, accessToken string) bool {
	_, err := s.Authenticate(ctx, accessToken)
	return err == nil
}

// publish sends the event in the background so callers never wait on the broker.
func (s *AuthService) publish(ctx context.Context, topic, eventType, key string, data any) {
	if s.Publisher == nil || topic == "" {
		return
	}
	l := logging.FromContext(ctx)
	ev, err := notify.NewEvent(eventType, key, data)
	if err != nil {
		l.Error("event_build_failed", "event_type", eventType, "error", err)
		return
	}

	bg := logging.IntoContext(context.WithoutCancel(ctx), l)
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		pctx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		err := s.Publisher.Publish(pctx, topic, ev)
		switch {
		case err == nil:
		case errors.Is(err, notify.ErrCircuitOpen):
			l.Warn("event_publish_skipped", "topic", topic, "event_type", eventType, "reason", "circuit open")
		default:
			l.Error("event_publish_failed", "topic", topic, "event_type", eventType, "error", err)
		}
	}()
}
