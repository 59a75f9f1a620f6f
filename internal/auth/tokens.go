package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"mrsh/internal/apierr"
	"mrsh/internal/constants"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

type TokenStore interface {
	Create(ctx context.Context, userID int64, selector, validatorHash string) error
	FindBySelector(ctx context.Context, selector string) (*models.Token, error)
	DeleteBySelector(ctx context.Context, selector string) error
}

type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

// Sessions issues and resolves selector/validator bearer tokens.
type Sessions struct {
	tokens TokenStore
	users  UserFinder
	cost   int

	// dummyHash is compared against when a selector is unknown so both
	// failure paths spend a bcrypt comparison.
	dummyHash string
}

func NewSessions(tokens TokenStore, users UserFinder, cost int) (*Sessions, error) {
	dummy, err := HashSecret("mrsh-dummy-validator", cost)
	if err != nil {
		return nil, err
	}
	return &Sessions{tokens: tokens, users: users, cost: cost, dummyHash: dummy}, nil
}

// Issue creates a new session token for userID. Only the validator hash is
// persisted.
func (s *Sessions) Issue(ctx context.Context, userID int64) (string, error) {
	selector, err := generateSecureToken(constants.SelectorBytes)
	if err != nil {
		return "", fmt.Errorf("generating selector: %w", err)
	}
	validator, err := generateSecureToken(constants.ValidatorBytes)
	if err != nil {
		return "", fmt.Errorf("generating validator: %w", err)
	}

	hash, err := HashSecret(validator, s.cost)
	if err != nil {
		return "", err
	}
	if err := s.tokens.Create(ctx, userID, selector, hash); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return selector + validator, nil
}

// Authorize resolves token to its owner. Malformed, unknown and mismatched
// tokens all fail with the same invalid_token error.
func (s *Sessions) Authorize(ctx context.Context, token string) (*models.User, error) {
	selector, validator, ok := SplitToken(token)
	if !ok {
		return nil, apierr.ErrInvalidToken
	}

	stored, err := s.tokens.FindBySelector(ctx, selector)
	if errors.Is(err, db.ErrNotFound) {
		CheckSecret(validator, s.dummyHash)
		return nil, apierr.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	if !CheckSecret(validator, stored.ValidatorHash) {
		return nil, apierr.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apierr.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("loading token owner: %w", err)
	}
	return user, nil
}

// Revoke deletes the token. It must already have passed Authorize.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	selector, _, ok := SplitToken(token)
	if !ok {
		return apierr.ErrInvalidToken
	}
	err := s.tokens.DeleteBySelector(ctx, selector)
	if errors.Is(err, db.ErrNotFound) {
		return apierr.ErrInvalidToken
	}
	return err
}

// SplitToken separates the fixed-length selector from the validator.
func SplitToken(token string) (selector, validator string, ok bool) {
	token = strings.TrimSpace(token)
	if len(token) <= constants.SelectorLength {
		return "", "", false
	}
	return token[:constants.SelectorLength], token[constants.SelectorLength:], true
}

// GenerateVerificationCode returns a URL-safe single-use code.
func GenerateVerificationCode() (string, error) {
	b := make([]byte, constants.VerificationCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
