package rolesync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"example.com/planboard/internal/realm"
)

// RealmAPI is the slice of the realm admin client the synchronizer needs.
type RealmAPI interface {
	UserRealmRoles(ctx context.Context, userID string) ([]realm.Role, error)
	CreateRealmRoleIfMissing(ctx context.Context, name string) error
	RealmRole(ctx context.Context, name string) (*realm.Role, error)
	AddRealmRolesToUser(ctx context.Context, userID string, roles []realm.Role) error
	RemoveRealmRolesFromUser(ctx context.Context, userID string, roles []realm.Role) error
}

type Syncer struct {
	realm RealmAPI
	log   *zap.Logger
}

func NewSyncer(api RealmAPI, log *zap.Logger) *Syncer {
	return &Syncer{realm: api, log: log}
}

// Sync makes the user's realm roles, restricted to the managed universe,
// equal exactly the desired set. Desired names outside managed are dropped;
// roles outside managed are never inspected or modified. Returns the role
// names added and removed.
func (s *Syncer) Sync(ctx context.Context, externalUserID string, desired, managed []string) (added, removed []string, err error) {
	managedSet := dedupe(managed)
	desiredSet := map[string]bool{}
	for _, name := range dedupeList(desired) {
		if managedSet[name] {
			desiredSet[name] = true
		}
	}

	for name := range managedSet {
		if err := s.realm.CreateRealmRoleIfMissing(ctx, name); err != nil {
			return nil, nil, fmt.Errorf("ensure role %s: %w", name, err)
		}
	}

	current, err := s.realm.UserRealmRoles(ctx, externalUserID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch current roles: %w", err)
	}
	currentManaged := map[string]bool{}
	for _, r := range current {
		if managedSet[r.Name] {
			currentManaged[r.Name] = true
		}
	}

	for name := range desiredSet {
		if !currentManaged[name] {
			added = append(added, name)
		}
	}
	for name := range currentManaged {
		if !desiredSet[name] {
			removed = append(removed, name)
		}
	}

	if len(added) > 0 {
		reps, err := s.resolve(ctx, added)
		if err != nil {
			return nil, nil, err
		}
		if err := s.realm.AddRealmRolesToUser(ctx, externalUserID, reps); err != nil {
			return nil, nil, fmt.Errorf("add roles: %w", err)
		}
	}
	if len(removed) > 0 {
		reps, err := s.resolve(ctx, removed)
		if err != nil {
			return nil, nil, err
		}
		if err := s.realm.RemoveRealmRolesFromUser(ctx, externalUserID, reps); err != nil {
			return nil, nil, fmt.Errorf("remove roles: %w", err)
		}
	}

	s.log.Info("synchronized realm roles",
		zap.String("realm_user_id", externalUserID),
		zap.Strings("added", added),
		zap.Strings("removed", removed))
	return added, removed, nil
}

// resolve fetches full role representations; the mapping endpoints need
// role IDs, not just names.
func (s *Syncer) resolve(ctx context.Context, names []string) ([]realm.Role, error) {
	out := make([]realm.Role, 0, len(names))
	for _, name := range names {
		r, err := s.realm.RealmRole(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", name, err)
		}
		out = append(out, *r)
	}
	return out, nil
}

func dedupe(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func dedupeList(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
