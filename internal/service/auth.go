// Package service contains application services for accounts, authentication and bookmarks.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/safety-beacon/internal/crypto"
	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/limiter"
	"github.com/and161185/safety-beacon/internal/model"
	"github.com/and161185/safety-beacon/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService defines account registration, login and token verification.
type AuthService interface {
	// Register creates an account and returns a handle for it.
	Register(ctx context.Context, reg model.Registration) (model.Handle, error)
	// Login applies rate limiting and authenticates by email and password.
	Login(ctx context.Context, email, password, ip string) (model.Handle, error)
	// Verify validates an access token and returns the account ID it was issued for.
	Verify(token string) (uuid.UUID, error)
}

// AuthServiceImpl implements AuthService with argon2id password hashes and HS256 JWTs.
type AuthServiceImpl struct {
	accounts  repository.AccountRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{accounts: accounts, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates a new account with a per-account salt. An empty username defaults to the email.
func (s *AuthServiceImpl) Register(ctx context.Context, reg model.Registration) (model.Handle, error) {
	email := normalizeEmail(reg.Email)
	if _, err := mail.ParseAddress(email); err != nil || reg.Password == "" {
		return model.Handle{}, fmt.Errorf("email and password required: %w", errs.ErrValidation)
	}
	username := strings.TrimSpace(reg.Username)
	if username == "" {
		username = email
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Handle{}, err
	}
	cred, err := pkgcrypto.NewCredential(reg.Password)
	if err != nil {
		return model.Handle{}, err
	}
	a := &model.Account{
		ID:       id,
		Username: username,
		Email:    email,
		PwdHash:  cred.Hash,
		SaltAuth: cred.Salt,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return model.Handle{}, err
	}
	return s.handleFor(*a)
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Handle, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Handle{}, err
	}
	if !allowed {
		return model.Handle{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Handle{}, err
	}
	ok := false
	if err != nil {
		pkgcrypto.BurnCompare(password)
	} else {
		ok = pkgcrypto.Credential{Salt: a.SaltAuth, Hash: a.PwdHash}.Matches(password)
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Handle{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Handle{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)
	return s.handleFor(*a)
}

// Verify parses an HS256 access token and returns its subject.
func (s *AuthServiceImpl) Verify(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return id, nil
}

func (s *AuthServiceImpl) handleFor(a model.Account) (model.Handle, error) {
	tok, exp, err := s.issueAccessToken(a.ID)
	if err != nil {
		return model.Handle{}, err
	}
	return model.Handle{Account: public(a), AccessToken: tok, ExpiresAt: exp}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(id uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	return signed, exp, err
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// public strips credential material before an account leaves the service layer.
func public(a model.Account) model.Account {
	a.PwdHash, a.SaltAuth = nil, nil
	return a
}
