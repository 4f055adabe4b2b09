// Package auth registers users and issues signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartaccounting/internal/core"
	"smartaccounting/internal/storage"
)

const maxUsernameLen = 64

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrUsernameTooLong    = fmt.Errorf("username too long (max %d characters)", maxUsernameLen)
)

// UserStore is the subset of the repository auth needs.
type UserStore interface {
	CreateUser(ctx context.Context, u storage.User) error
	GetUser(ctx context.Context, username string) (storage.User, error)
}

type RevocationStore interface {
	Revoke(id string, expiresAt time.Time) error
	IsRevoked(id string) (bool, error)
	Prune(now time.Time) (int, error)
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// Service handles registration, login and session verification.
type Service struct {
	users   UserStore
	revoked RevocationStore
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	cost    int
}

func NewService(users UserStore, revoked RevocationStore, secret string, ttl time.Duration) *Service {
	return &Service{
		users:   users,
		revoked: revoked,
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
}

// Register creates a new account with a bcrypt hashed password.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username, password = strings.TrimSpace(username), strings.TrimSpace(password)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return ErrUsernameTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.users.CreateUser(ctx, storage.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		return ErrUserExists
	}
	return err
}

// Login checks the password and returns a signed session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	username, password = strings.TrimSpace(username), strings.TrimSpace(password)
	if username == "" || password == "" {
		return "", time.Time{}, ErrMissingCredentials
	}

	u, err := s.users.GetUser(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Login for unknown user", "username", username)
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Login with wrong password", "username", username)
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	slog.InfoContext(ctx, "Session issued", "username", u.Username)
	return signed, expires, nil
}

// Verify returns the username a valid, unrevoked token was issued to.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	revoked, err := s.revoked.IsRevoked(claims.ID)
	if err != nil {
		return "", fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Logout revokes the token until it would have expired.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	slog.InfoContext(ctx, "Session revoked", "username", claims.Subject)
	return nil
}

// PruneRevoked drops revocations of sessions that have expired.
func (s *Service) PruneRevoked(ctx context.Context) (int, error) {
	n, err := s.revoked.Prune(s.now())
	if err != nil {
		return 0, fmt.Errorf("prune revocations: %w", err)
	}
	if n > 0 {
		slog.DebugContext(ctx, "Pruned revoked sessions", "count", n)
	}
	return n, nil
}

func (s *Service) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
