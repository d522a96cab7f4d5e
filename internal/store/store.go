package store

import (
	"errors"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"example.com/planboard/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate signals a unique-constraint violation; invite creation
	// uses it to re-query the row that won the race.
	ErrDuplicate = errors.New("duplicate row")
	// ErrTerminal signals a refused transition on an already-terminal invite.
	ErrTerminal = errors.New("invite already resolved")
)

type InviteStore interface {
	Create(inv *model.Invite) error
	GetByToken(token string) (*model.Invite, error)
	FindActive(workspaceID, email string) (*model.Invite, error)
	UpdatePending(token string, role model.Role, groupID *string, expiresAt time.Time) error
	MarkAccepted(token string, at time.Time) error
	Revoke(token string, reason model.RevokeReason, at time.Time) error
	RevokeExpired(now time.Time) (int64, error)
	RevokeExpiredForEmail(email string, now time.Time) error
	ListPendingForEmail(email string, now time.Time) ([]model.Invite, error)
	ListByInviter(inviterID string, since time.Time) ([]model.Invite, error)
}

type IdentityLinkStore interface {
	Upsert(link *model.IdentityLink) error
	GetByUserID(userID string) (*model.IdentityLink, error)
	GetByEmail(email string) (*model.IdentityLink, error)
}

type MembershipStore interface {
	Upsert(m *model.Membership) error
	Get(workspaceID, userID string) (*model.Membership, error)
	RolesForUser(userID string) ([]model.Role, error)
	RemoveAllForUser(userID string) error
}

type WorkspaceStore interface {
	Get(id string) (*model.Workspace, error)
	GetGroup(groupID string) (*model.WorkspaceGroup, error)
}

type SuperAdminStore interface {
	Upsert(sa *model.SuperAdmin) error
	IsSuperAdmin(userID string) (bool, error)
}

// Stores bundles the per-entity stores over one database handle.
type Stores struct {
	Invites     InviteStore
	Links       IdentityLinkStore
	Memberships MembershipStore
	Workspaces  WorkspaceStore
	SuperAdmins SuperAdminStore
}

// Open connects to MySQL and runs migrations. TranslateError is enabled so
// duplicate-key failures surface as gorm.ErrDuplicatedKey across drivers.
func Open(dsn string) (*Stores, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return NewStores(db)
}

// NewStores builds the store set from an existing *gorm.DB. Tests pass an
// in-memory sqlite handle.
func NewStores(db *gorm.DB) (*Stores, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &Stores{
		Invites:     &inviteStore{db: db},
		Links:       &identityLinkStore{db: db},
		Memberships: &membershipStore{db: db},
		Workspaces:  &workspaceStore{db: db},
		SuperAdmins: &superAdminStore{db: db},
	}, nil
}

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Invite{},
		&model.IdentityLink{},
		&model.Workspace{},
		&model.WorkspaceGroup{},
		&model.Membership{},
		&model.SuperAdmin{},
	)
}
