package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/model"
	"example.com/planboard/internal/store"
)

// ReserveAdmin idempotently keeps the configured reserve super-admin
// account in a known state: present in the directory, known password,
// registered as super-admin, and a member of no workspace.
//
// Every user-listing and assignee-listing surface must additionally filter
// this account out by email; IsReserve is the helper those surfaces use.
type ReserveAdmin struct {
	dir      directory.API
	members  store.MembershipStore
	admins   store.SuperAdminStore
	email    string
	password string
	log      *zap.Logger

	mu   sync.Mutex
	done bool
}

func NewReserveAdmin(dir directory.API, members store.MembershipStore, admins store.SuperAdminStore, email, password string, log *zap.Logger) *ReserveAdmin {
	return &ReserveAdmin{
		dir:      dir,
		members:  members,
		admins:   admins,
		email:    strings.ToLower(strings.TrimSpace(email)),
		password: password,
		log:      log,
	}
}

// IsReserve reports whether email belongs to the reserve account.
func (r *ReserveAdmin) IsReserve(email string) bool {
	return r.email != "" && strings.EqualFold(strings.TrimSpace(email), r.email)
}

// Ensure runs the bootstrap once per process; later calls are no-ops until
// Resync forces a re-run. A failed run is retried on the next call.
func (r *ReserveAdmin) Ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	if err := r.run(ctx); err != nil {
		return err
	}
	r.done = true
	return nil
}

// Resync re-runs the bootstrap regardless of the memoized state.
func (r *ReserveAdmin) Resync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.run(ctx); err != nil {
		return err
	}
	r.done = true
	return nil
}

func (r *ReserveAdmin) run(ctx context.Context) error {
	if r.email == "" || r.password == "" {
		return fmt.Errorf("reserve admin email/password not configured")
	}

	user, err := r.findByEmail(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		user, err = r.dir.CreateUser(ctx, directory.CreateUserParams{
			Email:       r.email,
			DisplayName: "Reserve Admin",
			Password:    r.password,
		})
		if err != nil {
			return fmt.Errorf("create reserve admin: %w", err)
		}
		r.log.Info("created reserve admin account", zap.String("email", r.email))
	} else if err := r.dir.SetPassword(ctx, user.ID, r.password); err != nil {
		return fmt.Errorf("reset reserve admin password: %w", err)
	}

	if err := r.members.RemoveAllForUser(user.ID); err != nil {
		return fmt.Errorf("strip reserve admin memberships: %w", err)
	}
	if err := r.admins.Upsert(&model.SuperAdmin{UserID: user.ID, Email: r.email}); err != nil {
		return fmt.Errorf("register reserve admin: %w", err)
	}
	r.log.Info("reserve admin ensured", zap.String("user_id", user.ID))
	return nil
}

func (r *ReserveAdmin) findByEmail(ctx context.Context) (*directory.User, error) {
	const perPage = 100
	for page := 0; page < 20; page++ {
		users, err := r.dir.ListUsers(ctx, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, r.email) {
				return &users[i], nil
			}
		}
		if len(users) < perPage {
			return nil, nil
		}
	}
	return nil, nil
}
