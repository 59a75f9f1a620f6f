package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mrsh/internal/apierr"
	"mrsh/internal/auth"
	"mrsh/internal/db"
	"mrsh/internal/models"
)

type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register stores a pending registration and mails its verification code.
func (s *Service) Register(ctx context.Context, r Registration) error {
	exists, err := s.users.EmailExists(ctx, r.Email)
	if err != nil {
		return err
	}
	if exists {
		return apierr.ErrEmailAlreadyRegistered
	}

	hash, err := auth.HashSecret(r.Password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	code, err := auth.GenerateVerificationCode()
	if err != nil {
		return fmt.Errorf("generating verification code: %w", err)
	}

	err = s.pending.Create(ctx, &models.PendingRegistration{
		Email:            r.Email,
		PasswordHash:     hash,
		VerificationCode: code,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
	}, s.verificationCutoff())
	if errors.Is(err, db.ErrDuplicate) {
		return apierr.ErrEmailAlreadyRegistered
	}
	if err != nil {
		return err
	}

	s.sendVerification(r.Email, code)
	return nil
}

// Login checks credentials and issues a new session token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.SessionUser, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		if _, err := s.pending.FindByEmail(ctx, email); err == nil {
			return nil, apierr.ErrEmailNotVerified
		} else if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		return nil, apierr.ErrUserDoesNotExist
	}
	if err != nil {
		return nil, err
	}

	if !auth.CheckSecret(password, user.PasswordHash) {
		return nil, apierr.ErrWrongPassword
	}

	token, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.SessionUser{User: user, Token: token}, nil
}

// Logout revokes token and then closes the live connections using it.
func (s *Service) Logout(ctx context.Context, userID int64, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	s.notify.SessionRevoked(userID, token)
	return nil
}

// Verify promotes the pending registration owning code to a user.
func (s *Service) Verify(ctx context.Context, code string) (*models.User, error) {
	user, err := s.pending.Promote(ctx, code, s.verificationCutoff())
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrDuplicate) {
		return nil, apierr.ErrVerification
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) DenyVerification(ctx context.Context, code string) error {
	err := s.pending.DeleteByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return apierr.ErrVerification
	}
	return err
}

func (s *Service) ResendVerification(ctx context.Context, email string) error {
	verified, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if verified {
		return apierr.ErrAlreadyVerified
	}

	p, err := s.pending.FindByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return apierr.ErrUserDoesNotExist
	}
	if err != nil {
		return err
	}

	// An expired code would be rejected by Verify, so mail a fresh one.
	if p.CreatedAt.Before(s.verificationCutoff()) {
		code, err := auth.GenerateVerificationCode()
		if err != nil {
			return fmt.Errorf("generating verification code: %w", err)
		}
		p, err = s.pending.Refresh(ctx, email, code)
		if errors.Is(err, db.ErrNotFound) {
			return apierr.ErrUserDoesNotExist
		}
		if err != nil {
			return err
		}
	}

	s.sendVerification(p.Email, p.VerificationCode)
	return nil
}

// verificationCutoff is the creation time before which pending
// registrations have expired.
func (s *Service) verificationCutoff() time.Time {
	return time.Now().UTC().Add(-s.opts.VerificationTTL)
}

func (s *Service) sendVerification(to, code string) {
	if s.mailer == nil {
		slog.Warn("no mailer configured, verification email not sent", "component", "accounts", "email", to)
		return
	}
	if err := s.mailer.SendVerification(to, code); err != nil {
		slog.Error("sending verification email", "component", "accounts", "error", err, "email", to)
	}
}

// ResolveUser finds a user by numeric id, default user<id> screen name or
// chosen screen name. ref must already be lower-cased.
func (s *Service) ResolveUser(ctx context.Context, ref string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if id, ok := parseUserID(ref); ok {
		user, err = s.users.FindByID(ctx, id)
	} else {
		user, err = s.users.FindByScreenName(ctx, ref)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, apierr.UserNotFound(ref)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ScreenNameAvailable reports whether screenName is free or already owned by
// ownerID.
func (s *Service) ScreenNameAvailable(ctx context.Context, screenName string, ownerID int64) (bool, error) {
	user, err := s.users.FindByScreenName(ctx, screenName)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return user.ID == ownerID, nil
}

func parseUserID(ref string) (int64, bool) {
	ref = strings.TrimPrefix(ref, "user")
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	return id, true
}
