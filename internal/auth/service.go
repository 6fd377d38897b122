package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/storage"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	maxNameLength     = 80
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must have at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must have at most 72 bytes")
	ErrEmptyName          = errors.New("display name is required")
)

type Service struct {
	store       *storage.Store
	trialDays   int
	adminEmails []string
	cost        int
	now         func() time.Time
}

func NewService(store *storage.Store, trialDays int, adminEmails []string) *Service {
	admins := make([]string, 0, len(adminEmails))
	for _, e := range adminEmails {
		admins = append(admins, strings.ToLower(strings.TrimSpace(e)))
	}
	return &Service{store: store, trialDays: trialDays, adminEmails: admins, cost: bcrypt.DefaultCost, now: time.Now}
}

// HashPassword checks the password rules and returns its bcrypt hash.
func (s *Service) HashPassword(password string) (string, error) {
	if len([]rune(password)) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates the account with a trial subscription. Emails listed as
// admin emails get the admin role.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (core.Account, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return core.Account{}, ErrEmptyName
	}
	if len([]rune(displayName)) > maxNameLength {
		return core.Account{}, core.ErrTooLong
	}
	hash, err := s.HashPassword(password)
	if err != nil {
		return core.Account{}, err
	}

	role := core.RoleUser
	if slices.Contains(s.adminEmails, email) {
		role = core.RoleAdmin
	}
	acc, err := s.store.CreateAccount(ctx,
		core.User{Email: email, PasswordHash: hash},
		core.Profile{DisplayName: displayName, Role: role},
		core.Subscription{Status: core.StatusTrialing, CurrentPeriodEnd: s.now().UTC().AddDate(0, 0, s.trialDays)})
	if errors.Is(err, storage.ErrConflict) {
		return core.Account{}, ErrEmailExists
	}
	if err != nil {
		return core.Account{}, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentAuth).InfoContext(ctx, "Account registered",
		log.FieldUserID, acc.ID, "role", string(role))
	return acc, nil
}

// Authenticate returns the account for valid credentials. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (core.Account, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Account{}, ErrInvalidCredentials
	}
	acc, err := s.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return core.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentAuth).WarnContext(ctx, "Login failed", log.FieldUserID, acc.ID)
		return core.Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

// ChangePassword replaces the password hash after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, userID, hash)
}
