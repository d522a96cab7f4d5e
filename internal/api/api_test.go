package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/invite"
	"example.com/planboard/internal/model"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct {
	createRes  *invite.CreateResult
	createErr  error
	acceptRes  *invite.AcceptResult
	acceptErr  error
	declineErr error
	cancelErr  error
	sent       []invite.SentInvite

	lastPendingOnly bool
	lastToken       string
	lastCaller      model.Caller
	roleSyncEmail   string
}

func (f *fakeService) Create(ctx context.Context, caller model.Caller, p invite.CreateParams) (*invite.CreateResult, error) {
	f.lastCaller = caller
	return f.createRes, f.createErr
}

func (f *fakeService) Accept(ctx context.Context, caller model.Caller, token string) (*invite.AcceptResult, error) {
	f.lastToken = token
	return f.acceptRes, f.acceptErr
}

func (f *fakeService) Decline(ctx context.Context, caller model.Caller, token string) error {
	f.lastToken = token
	return f.declineErr
}

func (f *fakeService) Cancel(ctx context.Context, caller model.Caller, token string) error {
	f.lastToken = token
	return f.cancelErr
}

func (f *fakeService) ListForInvitee(ctx context.Context, caller model.Caller) ([]invite.ReceivedInvite, error) {
	return nil, nil
}

func (f *fakeService) ListSent(ctx context.Context, caller model.Caller, pendingOnly bool) ([]invite.SentInvite, error) {
	f.lastPendingOnly = pendingOnly
	return f.sent, nil
}

func (f *fakeService) ResyncRoles(ctx context.Context, email string) ([]string, []string, error) {
	f.roleSyncEmail = email
	return []string{"app_workspace_editor"}, nil, nil
}

type fakeAuth struct {
	sessions map[string]*directory.User
}

func (f *fakeAuth) UserFromSession(ctx context.Context, token string) (*directory.User, error) {
	if u, ok := f.sessions[token]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.Unauthenticated, "invalid session token")
}

type fakeBoot struct {
	calls int
	err   error
}

func (f *fakeBoot) Resync(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeAdmins struct{ admins map[string]bool }

func (f *fakeAdmins) IsSuperAdmin(userID string) (bool, error) { return f.admins[userID], nil }

func setup() (*fakeService, *fakeBoot, *Handler) {
	svc := &fakeService{}
	boot := &fakeBoot{}
	auth := &fakeAuth{sessions: map[string]*directory.User{
		"sess-user":  {ID: "u-1", Email: "user@x.com", DisplayName: "User"},
		"sess-admin": {ID: "u-root", Email: "root@x.com", DisplayName: "Root"},
	}}
	admins := &fakeAdmins{admins: map[string]bool{"u-root": true}}
	h := NewHandler(svc, boot, auth, admins, zap.NewNop())
	return svc, boot, h
}

func do(h *Handler, method, path, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestMissingBearerToken(t *testing.T) {
	_, _, h := setup()
	w := do(h, http.MethodPost, "/invite.list", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInvalidSession(t *testing.T) {
	_, _, h := setup()
	w := do(h, http.MethodPost, "/invite.list", "sess-bogus", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["error"] != "invalid session" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestInviteCreateResponseShape(t *testing.T) {
	svc, _, h := setup()
	svc.createRes = &invite.CreateResult{
		Invite:     &model.Invite{Token: "tok-1", Email: "bob@x.com"},
		ActionLink: "https://app.example.com/invite?token=tok-1",
		Warnings:   []string{"invitation email could not be sent", "identity sync failed"},
	}

	w := do(h, http.MethodPost, "/invite.create", "sess-user",
		`{"workspaceId":"ws-1","email":"bob@x.com","role":"editor"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["success"] != true || out["inviteEmail"] != "bob@x.com" || out["inviteStatus"] != "pending" {
		t.Fatalf("body = %s", w.Body.String())
	}
	if out["warning"] != "invitation email could not be sent; identity sync failed" {
		t.Fatalf("warning = %v", out["warning"])
	}
	if svc.lastCaller.ID != "u-1" {
		t.Fatalf("caller = %+v", svc.lastCaller)
	}
}

func TestErrorKindStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.New(apperr.InvalidArgument, "invite has expired"), http.StatusBadRequest},
		{apperr.New(apperr.Forbidden, "this invite was issued for a different account"), http.StatusForbidden},
		{apperr.New(apperr.NotFound, "invite not found"), http.StatusNotFound},
		{apperr.New(apperr.Conflict, "invite was already accepted"), http.StatusConflict},
		{apperr.New(apperr.UpstreamUnavailable, "external realm unavailable"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc, _, h := setup()
		svc.acceptErr = tc.err
		w := do(h, http.MethodPost, "/invite.accept", "sess-user", `{"token":"tok-1"}`)
		if w.Code != tc.code {
			t.Fatalf("err %v: status = %d, want %d", tc.err, w.Code, tc.code)
		}
		if decode(t, w)["error"] != apperr.Message(tc.err) {
			t.Fatalf("err %v: body = %s", tc.err, w.Body.String())
		}
	}
}

func TestInternalErrorsDoNotLeak(t *testing.T) {
	svc, _, h := setup()
	svc.acceptErr = gormLikeError("pq: connection refused on host db-prod-3")

	w := do(h, http.MethodPost, "/invite.accept", "sess-user", `{"token":"tok-1"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["error"] != "internal error" {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
}

type gormLikeError string

func (e gormLikeError) Error() string { return string(e) }

func TestTokenRequired(t *testing.T) {
	_, _, h := setup()
	for _, body := range []string{"", "{}", `{"token":""}`} {
		w := do(h, http.MethodPost, "/invite.accept", "sess-user", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, w.Code)
		}
	}
}

func TestListSentEmptyBodyMeansNoFilter(t *testing.T) {
	svc, _, h := setup()
	svc.sent = []invite.SentInvite{{
		Invite: model.Invite{
			Token: "tok-1", WorkspaceID: "ws-1", Email: "bob@x.com",
			Role: model.RoleEditor, CreatedAt: time.Now(), ExpiresAt: time.Now(),
		},
		WorkspaceName: "Atlas",
		Status:        model.StatePending,
		IsPending:     true,
	}}

	w := do(h, http.MethodPost, "/invite.listSent", "sess-user", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.lastPendingOnly {
		t.Fatalf("empty body should not filter")
	}

	w = do(h, http.MethodPost, "/invite.listSent", "sess-user", `{"pendingOnly":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !svc.lastPendingOnly {
		t.Fatalf("filter not forwarded")
	}
}

func TestAdminRoutesRequireSuperAdmin(t *testing.T) {
	_, boot, h := setup()

	w := do(h, http.MethodPost, "/admin.reserveSync", "sess-user", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if boot.calls != 0 {
		t.Fatalf("bootstrap ran for a non-admin")
	}

	w = do(h, http.MethodPost, "/admin.reserveSync", "sess-admin", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if boot.calls != 1 {
		t.Fatalf("bootstrap calls = %d", boot.calls)
	}
}

func TestAdminRoleSync(t *testing.T) {
	svc, _, h := setup()

	w := do(h, http.MethodPost, "/admin.roleSync", "sess-admin", `{"email":"bob@x.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.roleSyncEmail != "bob@x.com" {
		t.Fatalf("email = %q", svc.roleSyncEmail)
	}

	w = do(h, http.MethodPost, "/admin.roleSync", "sess-admin", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, h := setup()
	w := do(h, http.MethodGet, "/invite.create", "sess-user", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	_, _, h := setup()
	w := do(h, http.MethodPost, "/invite.unknown", "sess-user", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
