// Package billing owns the plan catalog, subscription activation and the
// credits ledger. Payment collection happens elsewhere; choosing a plan here
// activates it directly.
package billing

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"ordem/internal/core"
	applog "ordem/internal/log"
	"ordem/internal/storage"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultCatalog []byte

var (
	ErrPlanInactive  = errors.New("plan is not available")
	ErrInvalidAmount = errors.New("credit amount must not be zero")
	ErrInvalidDays   = errors.New("days must be positive")
)

type catalogPlan struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	PriceCents int64  `yaml:"price_cents"`
	Interval   string `yaml:"interval"`
	Credits    int64  `yaml:"credits"`
	Active     bool   `yaml:"active"`
}

type catalogFile struct {
	Plans []catalogPlan `yaml:"plans"`
}

// ParseCatalog decodes and validates a YAML plan catalog.
func ParseCatalog(data []byte) ([]core.Plan, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Plans))
	plans := make([]core.Plan, 0, len(f.Plans))
	for i, p := range f.Plans {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return nil, fmt.Errorf("plan %d: missing code", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("plan %q: duplicate code", code)
		}
		seen[code] = true
		interval := core.PlanInterval(p.Interval)
		if interval != core.IntervalMonth && interval != core.IntervalYear {
			return nil, fmt.Errorf("plan %q: invalid interval %q", code, p.Interval)
		}
		if p.PriceCents < 0 || p.Credits < 0 {
			return nil, fmt.Errorf("plan %q: negative price or credits", code)
		}
		plans = append(plans, core.Plan{
			Code:       code,
			Name:       strings.TrimSpace(p.Name),
			PriceCents: p.PriceCents,
			Interval:   interval,
			Credits:    p.Credits,
			Active:     p.Active,
		})
	}
	return plans, nil
}

// DefaultCatalog returns the embedded plans.
func DefaultCatalog() ([]core.Plan, error) {
	return ParseCatalog(defaultCatalog)
}

// Invalidator drops cached subscription state for a user.
type Invalidator interface {
	Invalidate(userID string)
}

type Service struct {
	store       *storage.Store
	invalidator Invalidator
	now         func() time.Time
}

func NewService(store *storage.Store, inv Invalidator) *Service {
	return &Service{store: store, invalidator: inv, now: time.Now}
}

func (s *Service) invalidate(userID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
}

// SyncPlans upserts every catalog plan by code.
func (s *Service) SyncPlans(ctx context.Context, plans []core.Plan) (int, error) {
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		for _, p := range plans {
			if _, err := tx.UpsertPlan(ctx, p); err != nil {
				return fmt.Errorf("plan %s: %w", p.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentBilling).Info("Plan catalog synced", "plans", len(plans))
	return len(plans), nil
}

// Status is what the profile and paywall pages show.
type Status struct {
	Subscription core.Subscription
	Plan         *core.Plan
	Credits      int64
	Ledger       []core.CreditEntry
	Allowed      bool
	DaysLeft     int
}

func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	var st Status
	sub, err := s.store.GetSubscription(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		sub = core.Subscription{UserID: userID, Status: core.StatusExpired}
	case err != nil:
		return Status{}, err
	}
	st.Subscription = sub
	if sub.PlanID != "" {
		if p, err := s.store.GetPlan(ctx, sub.PlanID); err == nil {
			st.Plan = &p
		} else if !errors.Is(err, storage.ErrNotFound) {
			return Status{}, err
		}
	}
	if st.Credits, err = s.store.CreditBalance(ctx, userID); err != nil {
		return Status{}, err
	}
	if st.Ledger, err = s.store.ListCredits(ctx, userID, 20); err != nil {
		return Status{}, err
	}
	now := s.now()
	st.Allowed = sub.Allows(now)
	if st.Allowed {
		st.DaysLeft = int(sub.CurrentPeriodEnd.Sub(now).Hours()/24) + 1
	}
	return st, nil
}

func (s *Service) Plans(ctx context.Context) ([]core.Plan, error) {
	return s.store.ListPlans(ctx, true)
}

// ChoosePlan activates planID for one billing interval and grants its credits.
// An active subscription is extended from its current end.
func (s *Service) ChoosePlan(ctx context.Context, userID, planID string) (core.Subscription, error) {
	var sub core.Subscription
	err := s.store.Tx(ctx, func(tx *storage.Store) error {
		plan, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return ErrPlanInactive
		}
		from := s.now()
		if cur, err := tx.GetSubscription(ctx, userID); err == nil &&
			cur.Status == core.StatusActive && cur.CurrentPeriodEnd.After(from) {
			from = cur.CurrentPeriodEnd
		}
		sub = core.Subscription{
			UserID:           userID,
			PlanID:           plan.ID,
			Status:           core.StatusActive,
			CurrentPeriodEnd: plan.PeriodEnd(from),
		}
		if err := tx.UpsertSubscription(ctx, sub); err != nil {
			return err
		}
		if plan.Credits > 0 {
			if _, err := tx.AddCredit(ctx, userID, plan.Credits, "Plano "+plan.Name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	s.invalidate(userID)
	applog.FromContext(ctx).WithComponent(applog.ComponentBilling).Info("Plan activated",
		applog.FieldUserID, userID, "plan_id", planID, "period_end", sub.CurrentPeriodEnd)
	return sub, nil
}

// SetSubscription is the admin override: plan active for days from now.
func (s *Service) SetSubscription(ctx context.Context, userID, planID string, days int) (core.Subscription, error) {
	if days <= 0 {
		return core.Subscription{}, ErrInvalidDays
	}
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return core.Subscription{}, err
	}
	sub := core.Subscription{
		UserID:           userID,
		PlanID:           planID,
		Status:           core.StatusActive,
		CurrentPeriodEnd: s.now().AddDate(0, 0, days),
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return core.Subscription{}, err
	}
	s.invalidate(userID)
	return sub, nil
}

func (s *Service) GrantCredits(ctx context.Context, userID string, amount int64, reason string) (core.CreditEntry, error) {
	if amount == 0 {
		return core.CreditEntry{}, ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Ajuste manual"
	}
	return s.store.AddCredit(ctx, userID, amount, reason)
}

// ExpireDue marks lapsed subscriptions expired and drops their cached state.
func (s *Service) ExpireDue(ctx context.Context) ([]string, error) {
	ids, err := s.store.ExpireSubscriptions(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.invalidate(id)
	}
	return ids, nil
}
