package invite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
	"example.com/planboard/internal/config"
	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/events"
	"example.com/planboard/internal/mail"
	"example.com/planboard/internal/model"
	"example.com/planboard/internal/rolesync"
	"example.com/planboard/internal/store"
)

const sentWindow = 90 * 24 * time.Hour

// IdentityResolver links a user across both identity stores.
type IdentityResolver interface {
	EnsureLinkedUser(ctx context.Context, email, displayName string) (*model.IdentityLink, bool, error)
}

// RoleSyncer pushes a desired realm role set.
type RoleSyncer interface {
	Sync(ctx context.Context, externalUserID string, desired, managed []string) (added, removed []string, err error)
}

// ActionEmailer triggers the realm's required-action email for a user.
type ActionEmailer interface {
	SendActionEmail(ctx context.Context, userID string, actions []string) error
}

type CreateParams struct {
	WorkspaceID string
	Email       string
	Role        model.Role
	GroupID     *string
}

// CreateResult and AcceptResult carry the primary outcome plus diagnostics
// for secondary effects that failed without blocking the request.
type CreateResult struct {
	Invite     *model.Invite
	ActionLink string
	Warnings   []string
}

type AcceptResult struct {
	WorkspaceID string
	Warnings    []string
}

type ReceivedInvite struct {
	Invite             model.Invite
	WorkspaceName      string
	InviterEmail       string
	InviterDisplayName string
}

type SentInvite struct {
	Invite        model.Invite
	WorkspaceName string
	Status        model.InviteState
	IsPending     bool
}

// Manager owns the invite state machine and coordinates identity
// resolution, role synchronization, email, and event publishing around it.
type Manager struct {
	stores   *store.Stores
	resolver IdentityResolver
	roles    RoleSyncer
	actions  ActionEmailer
	users    directory.API
	mailer   mail.Mailer
	events   events.Publisher
	ttl      time.Duration
	baseURL  string
	now      func() time.Time
	log      *zap.Logger
}

// Deps wires a Manager. Resolver, Roles, and Actions may be nil when the
// external realm is not configured; the affected side effects then degrade
// to warnings. Mailer and Events may be nil as well.
type Deps struct {
	Stores   *store.Stores
	Resolver IdentityResolver
	Roles    RoleSyncer
	Actions  ActionEmailer
	Users    directory.API
	Mailer   mail.Mailer
	Events   events.Publisher
	TTL      time.Duration
	BaseURL  string
	Now      func() time.Time
	Log      *zap.Logger
}

func NewManager(d Deps) *Manager {
	if d.TTL <= 0 {
		d.TTL = 14 * 24 * time.Hour
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Manager{
		stores:   d.Stores,
		resolver: d.Resolver,
		roles:    d.Roles,
		actions:  d.Actions,
		users:    d.Users,
		mailer:   d.Mailer,
		events:   d.Events,
		ttl:      d.TTL,
		baseURL:  d.BaseURL,
		now:      d.Now,
		log:      d.Log,
	}
}

// Create issues (or refreshes) the single active invite for a
// (workspace, email) pair. The caller must be an admin of the workspace.
// Email delivery, identity resolution, and event publishing are secondary
// effects reported as warnings, never as errors.
func (m *Manager) Create(ctx context.Context, caller model.Caller, p CreateParams) (*CreateResult, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return nil, apperr.New(apperr.InvalidArgument, "email is required")
	}
	if !model.ValidRole(p.Role) {
		return nil, apperr.New(apperr.InvalidArgument, "invalid role %q", p.Role)
	}

	ws, err := m.stores.Workspaces.Get(p.WorkspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "workspace not found")
		}
		return nil, err
	}
	member, err := m.stores.Memberships.Get(ws.ID, caller.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if member == nil || member.Role != model.RoleAdmin {
		return nil, apperr.New(apperr.Forbidden, "only workspace admins can invite")
	}
	if p.GroupID != nil {
		g, err := m.stores.Workspaces.GetGroup(*p.GroupID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if g == nil || g.WorkspaceID != ws.ID {
			return nil, apperr.New(apperr.InvalidArgument, "group does not belong to this workspace")
		}
	}

	now := m.now().UTC()
	inv, err := m.upsertInvite(caller, ws.ID, email, p, now)
	if err != nil {
		return nil, err
	}

	res := &CreateResult{Invite: inv, ActionLink: m.actionLink(inv.Token)}
	m.createSideEffects(ctx, caller, ws, inv, res)
	return res, nil
}

// upsertInvite enforces at-most-one-active-invite: reuse an unexpired
// pending row, revoke an expired one, otherwise insert; a duplicate-key
// conflict means a concurrent create won, so adopt its row.
func (m *Manager) upsertInvite(caller model.Caller, workspaceID, email string, p CreateParams, now time.Time) (*model.Invite, error) {
	expiresAt := now.Add(m.ttl)

	existing, err := m.stores.Invites.FindActive(workspaceID, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Expired(now) {
			if err := m.stores.Invites.Revoke(existing.Token, model.RevokeExpired, now); err != nil && !errors.Is(err, store.ErrTerminal) {
				return nil, err
			}
		} else {
			return m.refreshPending(existing.Token, p.Role, p.GroupID, expiresAt)
		}
	}

	inv := &model.Invite{
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        p.Role,
		GroupID:     p.GroupID,
		InvitedBy:   caller.ID,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	err = m.stores.Invites.Create(inv)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}

	// lost the race: the unique index admitted another insert first
	winner, err := m.stores.Invites.FindActive(workspaceID, email)
	if err != nil {
		return nil, fmt.Errorf("requery after conflict: %w", err)
	}
	return m.refreshPending(winner.Token, p.Role, p.GroupID, expiresAt)
}

func (m *Manager) refreshPending(token string, role model.Role, groupID *string, expiresAt time.Time) (*model.Invite, error) {
	if err := m.stores.Invites.UpdatePending(token, role, groupID, expiresAt); err != nil {
		return nil, err
	}
	return m.stores.Invites.GetByToken(token)
}

func (m *Manager) createSideEffects(ctx context.Context, caller model.Caller, ws *model.Workspace, inv *model.Invite, res *CreateResult) {
	if m.resolver != nil {
		link, created, err := m.resolver.EnsureLinkedUser(ctx, inv.Email, "")
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("identity sync failed: %s", apperr.Message(err)))
		} else if created && m.actions != nil {
			if err := m.actions.SendActionEmail(ctx, link.RealmUserID, []string{"UPDATE_PASSWORD"}); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("password setup email failed: %s", apperr.Message(err)))
			}
		}
	}

	if m.mailer != nil {
		err := m.mailer.SendInvite(ctx, mail.InviteMessage{
			To:            inv.Email,
			WorkspaceName: ws.Name,
			InviterName:   caller.DisplayName,
			Role:          string(inv.Role),
			ActionLink:    res.ActionLink,
		})
		if err != nil {
			m.log.Warn("invite email failed", zap.String("email", inv.Email), zap.Error(err))
			res.Warnings = append(res.Warnings, fmt.Sprintf("invitation email could not be sent: %v", err))
		}
	}

	m.publish(ctx, events.InviteCreated, inv)
}

// Accept turns a pending invite into workspace membership. The membership
// write is the primary effect; role resynchronization afterwards is
// best-effort and reported through Warnings.
func (m *Manager) Accept(ctx context.Context, caller model.Caller, token string) (*AcceptResult, error) {
	inv, err := m.getForInvitee(caller, token)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()

	switch inv.State() {
	case model.StateAccepted:
		// idempotent only when membership already exists
		if _, err := m.stores.Memberships.Get(inv.WorkspaceID, caller.ID); err == nil {
			return &AcceptResult{WorkspaceID: inv.WorkspaceID}, nil
		}
		return nil, apperr.New(apperr.Conflict, "invite was already accepted")
	case model.StatePending:
		// fall through
	default:
		return nil, apperr.New(apperr.InvalidArgument, "invite is no longer active")
	}

	if inv.Expired(now) {
		if err := m.stores.Invites.Revoke(token, model.RevokeExpired, now); err != nil && !errors.Is(err, store.ErrTerminal) {
			return nil, err
		}
		return nil, apperr.New(apperr.InvalidArgument, "invite has expired")
	}

	membership := &model.Membership{
		WorkspaceID: inv.WorkspaceID,
		UserID:      caller.ID,
		Role:        inv.Role,
		GroupID:     inv.GroupID,
	}
	if err := m.stores.Memberships.Upsert(membership); err != nil {
		return nil, fmt.Errorf("write membership: %w", err)
	}

	if err := m.stores.Invites.MarkAccepted(token, now); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// concurrent resolution; the membership write above stands
			return nil, apperr.New(apperr.Conflict, "invite was already resolved")
		}
		return nil, err
	}

	res := &AcceptResult{WorkspaceID: inv.WorkspaceID}
	res.Warnings = append(res.Warnings, m.resyncAfterAccept(ctx, caller)...)
	m.publish(ctx, events.InviteAccepted, inv)
	return res, nil
}

// resyncAfterAccept pushes the caller's up-to-date role set to the realm.
// The membership write has already committed, so every failure here is a
// warning, never a rollback.
func (m *Manager) resyncAfterAccept(ctx context.Context, caller model.Caller) []string {
	if m.resolver == nil || m.roles == nil {
		return []string{apperr.Message(config.ErrRealmNotConfigured)}
	}
	link, _, err := m.resolver.EnsureLinkedUser(ctx, caller.Email, caller.DisplayName)
	if err != nil {
		return []string{fmt.Sprintf("identity sync failed: %s", apperr.Message(err))}
	}
	snap, err := m.snapshot(caller.ID)
	if err != nil {
		return []string{fmt.Sprintf("role snapshot failed: %v", err)}
	}
	if _, _, err := m.roles.Sync(ctx, link.RealmUserID, rolesync.DesiredRoles(snap), rolesync.Managed()); err != nil {
		return []string{fmt.Sprintf("role sync failed: %s", apperr.Message(err))}
	}
	return nil
}

func (m *Manager) snapshot(userID string) (model.RoleSnapshot, error) {
	roles, err := m.stores.Memberships.RolesForUser(userID)
	if err != nil {
		return model.RoleSnapshot{}, err
	}
	isSA, err := m.stores.SuperAdmins.IsSuperAdmin(userID)
	if err != nil {
		return model.RoleSnapshot{}, err
	}
	return model.RoleSnapshot{IsSuperAdmin: isSA, WorkspaceRoles: roles}, nil
}

// Decline marks the invite declined. Declining an invite that is already
// revoked (for any reason) is a no-op success so client retries are safe;
// an accepted invite refuses.
func (m *Manager) Decline(ctx context.Context, caller model.Caller, token string) error {
	inv, err := m.getForInvitee(caller, token)
	if err != nil {
		return err
	}
	return m.revoke(ctx, inv, model.RevokeDeclined, events.InviteDeclined)
}

// Cancel is the inviter-side counterpart of Decline.
func (m *Manager) Cancel(ctx context.Context, caller model.Caller, token string) error {
	inv, err := m.stores.Invites.GetByToken(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "invite not found")
		}
		return err
	}
	if inv.InvitedBy != caller.ID {
		return apperr.New(apperr.Forbidden, "only the inviter can cancel this invite")
	}
	return m.revoke(ctx, inv, model.RevokeCanceled, events.InviteCanceled)
}

func (m *Manager) revoke(ctx context.Context, inv *model.Invite, reason model.RevokeReason, ev events.EventType) error {
	switch inv.State() {
	case model.StateAccepted:
		return apperr.New(apperr.Conflict, "invite was already accepted")
	case model.StatePending:
	default:
		return nil
	}
	if err := m.stores.Invites.Revoke(inv.Token, reason, m.now().UTC()); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// lost a race against another resolution; re-read to decide
			cur, rerr := m.stores.Invites.GetByToken(inv.Token)
			if rerr == nil && cur.State() != model.StateAccepted {
				return nil
			}
			return apperr.New(apperr.Conflict, "invite was already accepted")
		}
		return err
	}
	m.publish(ctx, ev, inv)
	return nil
}

// ListForInvitee returns the caller's pending, unexpired invites, lazily
// revoking any stale rows first.
func (m *Manager) ListForInvitee(ctx context.Context, caller model.Caller) ([]ReceivedInvite, error) {
	email := strings.ToLower(strings.TrimSpace(caller.Email))
	now := m.now().UTC()
	if err := m.stores.Invites.RevokeExpiredForEmail(email, now); err != nil {
		return nil, err
	}
	invites, err := m.stores.Invites.ListPendingForEmail(email, now)
	if err != nil {
		return nil, err
	}

	out := make([]ReceivedInvite, 0, len(invites))
	for _, inv := range invites {
		item := ReceivedInvite{Invite: inv}
		if ws, err := m.stores.Workspaces.Get(inv.WorkspaceID); err == nil {
			item.WorkspaceName = ws.Name
		}
		if m.users != nil {
			if u, err := m.users.FindUserByID(ctx, inv.InvitedBy); err == nil {
				item.InviterEmail = u.Email
				item.InviterDisplayName = u.DisplayName
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ListSent returns invites the caller issued within the recent window,
// each with a display status derived from the terminal fields.
func (m *Manager) ListSent(ctx context.Context, caller model.Caller, pendingOnly bool) ([]SentInvite, error) {
	now := m.now().UTC()
	invites, err := m.stores.Invites.ListByInviter(caller.ID, now.Add(-sentWindow))
	if err != nil {
		return nil, err
	}

	out := make([]SentInvite, 0, len(invites))
	for _, inv := range invites {
		status := inv.DisplayStatus(now)
		pending := status == model.StatePending
		if pendingOnly && !pending {
			continue
		}
		item := SentInvite{Invite: inv, Status: status, IsPending: pending}
		if ws, err := m.stores.Workspaces.Get(inv.WorkspaceID); err == nil {
			item.WorkspaceName = ws.Name
		}
		out = append(out, item)
	}
	return out, nil
}

// ResyncRoles is the admin-triggered variant of the post-accept resync;
// unlike the secondary-effect path, failures here are real errors.
func (m *Manager) ResyncRoles(ctx context.Context, email string) (added, removed []string, err error) {
	if m.resolver == nil || m.roles == nil {
		return nil, nil, config.ErrRealmNotConfigured
	}
	link, _, err := m.resolver.EnsureLinkedUser(ctx, email, "")
	if err != nil {
		return nil, nil, err
	}
	snap, err := m.snapshot(link.UserID)
	if err != nil {
		return nil, nil, err
	}
	return m.roles.Sync(ctx, link.RealmUserID, rolesync.DesiredRoles(snap), rolesync.Managed())
}

func (m *Manager) getForInvitee(caller model.Caller, token string) (*model.Invite, error) {
	inv, err := m.stores.Invites.GetByToken(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "invite not found")
		}
		return nil, err
	}
	if !strings.EqualFold(caller.Email, inv.Email) {
		return nil, apperr.New(apperr.Forbidden, "this invite was issued for a different account")
	}
	return inv, nil
}

func (m *Manager) actionLink(token string) string {
	return fmt.Sprintf("%s/invite?token=%s", strings.TrimRight(m.baseURL, "/"), url.QueryEscape(token))
}

func (m *Manager) publish(ctx context.Context, typ events.EventType, inv *model.Invite) {
	if m.events == nil {
		return
	}
	ev := events.Event{
		Type:        typ,
		Token:       inv.Token,
		WorkspaceID: inv.WorkspaceID,
		Email:       inv.Email,
		At:          m.now().UTC(),
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("event publish failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
