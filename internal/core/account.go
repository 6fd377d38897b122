package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusExpired  SubscriptionStatus = "expired"
	StatusCanceled SubscriptionStatus = "canceled"
)

type PlanInterval string

const (
	IntervalMonth PlanInterval = "month"
	IntervalYear  PlanInterval = "year"
)

var ErrInvalidEmail = errors.New("invalid email")

type (
	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Profile struct {
		UserID      string
		DisplayName string
		Bio         string
		AvatarPath  string
		Role        Role
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Account joins a user with its profile, the shape most handlers need.
	Account struct {
		User
		Profile Profile
	}

	Plan struct {
		ID         string
		Code       string
		Name       string
		PriceCents int64
		Interval   PlanInterval
		Credits    int64
		Active     bool
	}

	Subscription struct {
		UserID           string
		PlanID           string
		Status           SubscriptionStatus
		CurrentPeriodEnd time.Time
		UpdatedAt        time.Time
	}

	CreditEntry struct {
		ID        string
		UserID    string
		Amount    int64
		Reason    string
		CreatedAt time.Time
	}
)

func (a Account) IsAdmin() bool {
	return a.Profile.Role == RoleAdmin
}

// Allows reports whether the subscription grants access at now.
func (s Subscription) Allows(now time.Time) bool {
	switch s.Status {
	case StatusActive, StatusTrialing:
		return now.Before(s.CurrentPeriodEnd)
	default:
		return false
	}
}

// PeriodEnd returns the end of one billing interval that starts at from.
func (p Plan) PeriodEnd(from time.Time) time.Time {
	if p.Interval == IntervalYear {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

// NormalizeEmail lowercases and trims an address and checks its syntax.
func NormalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return s, nil
}
