package model

import (
	"testing"
	"time"
)

func TestInviteStateDerivation(t *testing.T) {
	now := time.Now().UTC()

	inv := Invite{ExpiresAt: now.Add(time.Hour)}
	if inv.State() != StatePending || inv.Terminal() {
		t.Fatalf("fresh invite: state = %s", inv.State())
	}

	accepted := inv
	accepted.AcceptedAt = &now
	if accepted.State() != StateAccepted || !accepted.Terminal() {
		t.Fatalf("accepted: state = %s", accepted.State())
	}

	for reason, want := range map[RevokeReason]InviteState{
		RevokeDeclined: StateDeclined,
		RevokeCanceled: StateCanceled,
		RevokeExpired:  StateExpired,
	} {
		revoked := inv
		revoked.RevokedAt = &now
		revoked.RevokedReason = reason
		if revoked.State() != want {
			t.Fatalf("reason %s: state = %s, want %s", reason, revoked.State(), want)
		}
	}
}

func TestInviteExpiry(t *testing.T) {
	now := time.Now().UTC()

	stale := Invite{ExpiresAt: now.Add(-time.Minute)}
	if !stale.Expired(now) {
		t.Fatal("past deadline not expired")
	}
	if stale.DisplayStatus(now) != StateExpired {
		t.Fatalf("display = %s", stale.DisplayStatus(now))
	}

	// terminal rows are never "expired", whatever the deadline says
	accepted := stale
	accepted.AcceptedAt = &now
	if accepted.Expired(now) {
		t.Fatal("accepted invite reported expired")
	}
	if accepted.DisplayStatus(now) != StateAccepted {
		t.Fatalf("display = %s", accepted.DisplayStatus(now))
	}
}

func TestRespondedAt(t *testing.T) {
	now := time.Now().UTC()
	inv := Invite{}
	if inv.RespondedAt() != nil {
		t.Fatal("pending invite has a response time")
	}
	inv.RevokedAt = &now
	if inv.RespondedAt() == nil {
		t.Fatal("revoked invite lost its response time")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []Role{RoleViewer, RoleEditor, RoleAdmin} {
		if !ValidRole(r) {
			t.Fatalf("%s rejected", r)
		}
	}
	if ValidRole("owner") || ValidRole("") {
		t.Fatal("unknown role accepted")
	}
}
