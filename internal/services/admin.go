package services

import (
	"context"
	"errors"

	"ordem/internal/core"
	"ordem/internal/log"
	"ordem/internal/storage"
)

var ErrSelfDemotion = errors.New("admins cannot remove their own admin role")

// AdminUserRow adds the display fields the back-office table needs.
type AdminUserRow struct {
	storage.AdminUser
	PlanName string
}

type AdminService struct {
	store *storage.Store
}

func NewAdminService(store *storage.Store) *AdminService {
	return &AdminService{store: store}
}

func (s *AdminService) Stats(ctx context.Context) (storage.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *AdminService) Users(ctx context.Context) ([]AdminUserRow, error) {
	users, err := s.store.ListUsersForAdmin(ctx)
	if err != nil {
		return nil, err
	}
	plans, err := s.store.ListPlans(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(plans))
	for _, p := range plans {
		names[p.ID] = p.Name
	}
	out := make([]AdminUserRow, 0, len(users))
	for _, u := range users {
		out = append(out, AdminUserRow{AdminUser: u, PlanName: names[u.PlanID]})
	}
	return out, nil
}

// ToggleAdmin flips the target's role. actorID cannot demote themselves.
func (s *AdminService) ToggleAdmin(ctx context.Context, actorID, targetID string) (core.Role, error) {
	acc, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		return "", err
	}
	role := core.RoleAdmin
	if acc.IsAdmin() {
		if actorID == targetID {
			return "", ErrSelfDemotion
		}
		role = core.RoleUser
	}
	if err := s.store.SetRole(ctx, targetID, role); err != nil {
		return "", err
	}
	log.FromContext(ctx).WithComponent(log.ComponentAuth).Info("Role changed",
		log.FieldUserID, targetID, "actor_id", actorID, "role", role)
	return role, nil
}
