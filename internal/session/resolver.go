package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dinehub/realtime/internal/model"
)

// ErrTokenExpired is returned when a stored bearer token is past its expiry.
// The caller must re-authenticate; resolution falls back to the guest path.
var ErrTokenExpired = errors.New("session: bearer token expired")

// Resolver decides whether the current actor is a guest or an authenticated
// user and produces a stable session key used for room routing.
//
// Resolution is idempotent: repeated Resolve calls return the same session
// until the token changes or expires.
type Resolver struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	cached *model.Session
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve returns the current session. A stored bearer token yields an
// authenticated session; otherwise a guest key is read from the store or
// generated and persisted on first use. An expired token is rotated out and
// resolution continues as guest.
func (r *Resolver) Resolve(ctx context.Context) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && !r.cached.TokenExpired() {
		return *r.cached, nil
	}
	r.cached = nil

	token, err := r.store.Get(ctx, keyAuthToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.Session{}, fmt.Errorf("read auth token: %w", err)
	}

	if token != "" {
		sess, err := r.authenticated(ctx, token)
		if err == nil {
			r.cached = &sess
			return sess, nil
		}

		// Expired or unreadable token: rotate it out and fall back to
		// the guest path. Messages sent under the old identity are not
		// retroactively merged.
		r.logger.Warn("discarding stored token", "error", err)
		if delErr := r.store.Delete(ctx, keyAuthToken); delErr != nil {
			return model.Session{}, fmt.Errorf("rotate expired token: %w", delErr)
		}
	}

	sess, err := r.guest(ctx)
	if err != nil {
		return model.Session{}, err
	}
	r.cached = &sess
	return sess, nil
}

// SetToken stores a bearer token after login and invalidates the cached
// session.
func (r *Resolver) SetToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, _, err := inspectToken(token); err != nil {
		return err
	}
	if err := r.store.Set(ctx, keyAuthToken, token); err != nil {
		return fmt.Errorf("store auth token: %w", err)
	}
	r.cached = nil
	return nil
}

// ClearToken removes the stored token on logout. The persisted guest key is
// kept, so the actor resumes its previous guest identity.
func (r *Resolver) ClearToken(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, keyAuthToken); err != nil {
		return fmt.Errorf("clear auth token: %w", err)
	}
	r.cached = nil
	return nil
}

func (r *Resolver) authenticated(ctx context.Context, token string) (model.Session, error) {
	userID, expiresAt, err := inspectToken(token)
	if err != nil {
		return model.Session{}, err
	}
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		return model.Session{}, ErrTokenExpired
	}

	// The authenticated room key is the user ID; the server routes
	// customer chat by it.
	sess := model.Session{
		Kind:           model.IdentityAuthenticated,
		SessionKey:     strconv.FormatInt(userID, 10),
		UserID:         userID,
		Token:          token,
		TokenExpiresAt: expiresAt,
	}

	if err := r.store.Set(ctx, keyUserID, sess.SessionKey); err != nil {
		r.logger.Warn("failed to persist user id", "error", err)
	}

	return sess, nil
}

func (r *Resolver) guest(ctx context.Context) (model.Session, error) {
	key, err := r.store.Get(ctx, keyGuestKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.Session{}, fmt.Errorf("read guest key: %w", err)
	}

	if key == "" {
		key = newGuestKey()
		if err := r.store.Set(ctx, keyGuestKey, key); err != nil {
			return model.Session{}, fmt.Errorf("persist guest key: %w", err)
		}
		r.logger.Debug("generated guest key", "session_key", key)
	}

	return model.Session{
		Kind:       model.IdentityGuest,
		SessionKey: key,
	}, nil
}

// newGuestKey produces an opaque guest key. The creation timestamp component
// keeps keys unique even if the random part ever collides.
func newGuestKey() string {
	return fmt.Sprintf("guest-%s-%d", uuid.NewString(), time.Now().UnixMilli())
}

// inspectToken reads the user ID and expiry claims without verifying the
// signature. Token issuance and validation belong to the auth service; only
// presence and expiry are consumed here.
func inspectToken(token string) (userID int64, expiresAt time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	switch v := claims["userId"].(type) {
	case float64:
		userID = int64(v)
	case string:
		userID, _ = strconv.ParseInt(v, 10, 64)
	}
	if userID == 0 {
		if sub, err := claims.GetSubject(); err == nil {
			userID, _ = strconv.ParseInt(sub, 10, 64)
		}
	}
	if userID == 0 {
		return 0, time.Time{}, errors.New("token missing user id claim")
	}

	return userID, expiresAt, nil
}
