package realm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
)

// fakeRealmServer emulates the slice of the admin API the client touches.
type fakeRealmServer struct {
	tokenRequests int32
	rejectFirst   bool // first authorized call returns 401

	calls int32
}

func (f *fakeRealmServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.tokenRequests, 1)
		if r.FormValue("grant_type") != "password" {
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", n),
			"expires_in":   300,
		})
	})

	mux.HandleFunc("/admin/realms/app/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if f.rejectFirst && auth == "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&f.calls, 1)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/role-mappings/realm") && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode([]Role{{ID: "1", Name: "app_super_admin"}})
		case strings.HasSuffix(r.URL.Path, "/roles") && r.Method == http.MethodPost:
			var role Role
			json.NewDecoder(r.Body).Decode(&role)
			if role.Name == "app_super_admin" {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"errorMessage":"Role with name app_super_admin already exists"}`))
				return
			}
			w.WriteHeader(http.StatusCreated)
		case strings.HasSuffix(r.URL.Path, "/users") && r.Method == http.MethodPost:
			var u User
			json.NewDecoder(r.Body).Decode(&u)
			if u.Email == "taken@x.com" {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"errorMessage":"User exists with same email"}`))
				return
			}
			w.Header().Set("Location", "http://realm/admin/realms/app/users/new-user-id")
			w.WriteHeader(http.StatusCreated)
		case strings.HasSuffix(r.URL.Path, "/users") && r.Method == http.MethodGet:
			if r.URL.Query().Get("exact") != "true" {
				http.Error(w, `{"error":"expected exact lookup"}`, http.StatusBadRequest)
				return
			}
			if r.URL.Query().Get("email") == "known@x.com" {
				json.NewEncoder(w).Encode([]User{{ID: "r-1", Email: "Known@x.com"}})
				return
			}
			json.NewEncoder(w).Encode([]User{})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/roles/"):
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Could not find role"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeRealmServer) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	c := NewClient(Config{
		BaseURL:       ts.URL,
		Realm:         "app",
		AdminRealm:    "master",
		AdminClientID: "admin-cli",
		AdminUser:     "svc",
		AdminPassword: "pw",
	}, zap.NewNop())
	return c, ts
}

func TestAdminTokenCached(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	tok1, err := c.AdminToken(ctx, false)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tok2, err := c.AdminToken(ctx, false)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok1 != tok2 {
		t.Fatalf("cached token not reused: %s vs %s", tok1, tok2)
	}
	if got := atomic.LoadInt32(&f.tokenRequests); got != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", got)
	}

	// force bypasses the cache
	tok3, err := c.AdminToken(ctx, true)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok3 == tok1 {
		t.Fatalf("forced refresh returned the cached token")
	}
}

func TestUnauthorizedRetriesExactlyOnce(t *testing.T) {
	f := &fakeRealmServer{rejectFirst: true}
	c, _ := newTestClient(t, f)

	roles, err := c.UserRealmRoles(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("roles after retry: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "app_super_admin" {
		t.Fatalf("roles = %+v", roles)
	}
	if got := atomic.LoadInt32(&f.tokenRequests); got != 2 {
		t.Fatalf("expected one forced refresh, token endpoint hit %d times", got)
	}
}

func TestFindUserByEmail(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	u, err := c.FindUserByEmail(ctx, "known@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u == nil || u.ID != "r-1" {
		t.Fatalf("user = %+v", u)
	}

	u, err = c.FindUserByEmail(ctx, "absent@x.com")
	if err != nil {
		t.Fatalf("find absent: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil for absent user, got %+v", u)
	}
}

func TestCreateUserParsesLocation(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)

	id, err := c.CreateUser(context.Background(), User{Email: "new@x.com", Username: "new@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "new-user-id" {
		t.Fatalf("id = %q", id)
	}
}

func TestCreateUserConflictNormalized(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)

	_, err := c.CreateUser(context.Background(), User{Email: "taken@x.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.UpstreamRejected {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "User exists with same email") {
		t.Fatalf("message not normalized from body: %v", err)
	}
}

func TestCreateRealmRoleConflictIsSuccess(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if err := c.CreateRealmRoleIfMissing(ctx, "app_super_admin"); err != nil {
		t.Fatalf("conflict should be success: %v", err)
	}
	if err := c.CreateRealmRoleIfMissing(ctx, "app_workspace_viewer"); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestRealmRoleNotFound(t *testing.T) {
	f := &fakeRealmServer{}
	c, _ := newTestClient(t, f)

	_, err := c.RealmRole(context.Background(), "missing")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("kind = %v, err = %v", apperr.KindOf(err), err)
	}
}

func TestServerErrorsMapToUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "token") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 300})
			return
		}
		http.Error(w, "upstream blew up", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(Config{
		BaseURL: ts.URL, Realm: "app", AdminRealm: "master",
		AdminClientID: "admin-cli", AdminUser: "svc", AdminPassword: "pw",
	}, zap.NewNop())

	_, err := c.UserRealmRoles(context.Background(), "r-1")
	if apperr.KindOf(err) != apperr.UpstreamUnavailable {
		t.Fatalf("kind = %v, err = %v", apperr.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "upstream blew up") {
		t.Fatalf("raw body not surfaced: %v", err)
	}
}
