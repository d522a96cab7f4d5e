package realm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
)

// tokenSkew is subtracted from the token lifetime so a token nearing expiry
// is refreshed instead of reused.
const tokenSkew = 30 * time.Second

type Config struct {
	BaseURL       string
	Realm         string
	AdminRealm    string
	AdminClientID string
	AdminUser     string
	AdminPassword string
	AppClientID   string
	RedirectURI   string
	Timeout       time.Duration
}

type cachedToken struct {
	key       string
	token     string
	expiresAt time.Time
}

// Client talks to the external realm's admin API as a service account.
// The bearer token is the only process-wide mutable state; the mutex is for
// efficiency, a redundant refresh is harmless.
type Client struct {
	cfg  Config
	http *resty.Client
	log  *zap.Logger

	mu  sync.Mutex
	tok cachedToken
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: resty.New().SetTimeout(cfg.Timeout),
		log:  log,
	}
}

func (c *Client) cacheKey() string {
	return c.cfg.BaseURL + "|" + c.cfg.AdminRealm + "|" + c.cfg.AdminClientID + "|" + c.cfg.AdminUser
}

// AdminToken returns a bearer token for the admin API, fetching a fresh one
// via password grant when the cached token is missing, keyed differently,
// or within tokenSkew of expiry. force bypasses the cache.
func (c *Client) AdminToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.cacheKey()
	now := time.Now()
	if !force && c.tok.key == key && now.Add(tokenSkew).Before(c.tok.expiresAt) {
		return c.tok.token, nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.cfg.BaseURL, c.cfg.AdminRealm)
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type": "password",
			"client_id":  c.cfg.AdminClientID,
			"username":   c.cfg.AdminUser,
			"password":   c.cfg.AdminPassword,
		}).
		SetResult(&out).
		Post(tokenURL)
	if err != nil {
		return "", apperr.Wrap(apperr.UpstreamUnavailable, err, "external realm unavailable")
	}
	if resp.IsError() {
		return "", normalizeError(resp)
	}
	if out.AccessToken == "" {
		return "", apperr.New(apperr.UpstreamRejected, "external realm returned an empty admin token")
	}

	c.tok = cachedToken{
		key:       key,
		token:     out.AccessToken,
		expiresAt: now.Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	c.log.Debug("refreshed realm admin token", zap.Int("expires_in", out.ExpiresIn))
	return c.tok.token, nil
}

type call struct {
	method string
	path   string
	query  map[string]string
	body   any
	out    any
}

// do performs one admin-API call. On 401 it forces a token refresh and
// retries exactly once; a second failure is surfaced as-is.
func (c *Client) do(ctx context.Context, cl call) (*resty.Response, error) {
	attempt := func(token string) (*resty.Response, error) {
		req := c.http.R().SetContext(ctx).SetAuthToken(token)
		if cl.query != nil {
			req.SetQueryParams(cl.query)
		}
		if cl.body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
		}
		if cl.out != nil {
			req.SetResult(cl.out)
		}
		return req.Execute(cl.method, c.cfg.BaseURL+cl.path)
	}

	token, err := c.AdminToken(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := attempt(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "external realm unavailable")
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		token, err = c.AdminToken(ctx, true)
		if err != nil {
			return nil, err
		}
		resp, err = attempt(token)
		if err != nil {
			return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "external realm unavailable")
		}
	}
	return resp, nil
}

// normalizeError extracts a display message from an admin-API error body.
func normalizeError(resp *resty.Response) error {
	kind := apperr.UpstreamRejected
	if resp.StatusCode() >= 500 {
		kind = apperr.UpstreamUnavailable
	}

	body := resp.Body()
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		for _, k := range []string{"error_description", "errorMessage", "message", "error"} {
			if v, ok := parsed[k].(string); ok && v != "" {
				return apperr.New(kind, "%s", v)
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return apperr.New(kind, "%s", msg)
	}
	return apperr.New(kind, "external realm error: %s", resp.Status())
}

func (c *Client) realmPath(format string, args ...any) string {
	return fmt.Sprintf("/admin/realms/%s", c.cfg.Realm) + fmt.Sprintf(format, args...)
}

// FindUserByEmail looks up a realm user by exact email match. Returns
// (nil, nil) when no user matches.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var users []User
	resp, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   c.realmPath("/users"),
		query:  map[string]string{"email": email, "exact": "true"},
		out:    &users,
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, normalizeError(resp)
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (c *Client) FindUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	resp, err := c.do(ctx, call{method: http.MethodGet, path: c.realmPath("/users/%s", id), out: &u})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, apperr.New(apperr.NotFound, "realm user %s not found", id)
	}
	if resp.IsError() {
		return nil, normalizeError(resp)
	}
	return &u, nil
}

// CreateUser creates a realm user and returns the new user id, parsed from
// the Location header of the 201 response.
func (c *Client) CreateUser(ctx context.Context, u User) (string, error) {
	resp, err := c.do(ctx, call{method: http.MethodPost, path: c.realmPath("/users"), body: u})
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", normalizeError(resp)
	}
	loc := resp.Header().Get("Location")
	if loc == "" {
		return "", apperr.New(apperr.UpstreamRejected, "external realm did not return the new user's location")
	}
	parts := strings.Split(loc, "/")
	return parts[len(parts)-1], nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, u User) error {
	resp, err := c.do(ctx, call{method: http.MethodPut, path: c.realmPath("/users/%s", id), body: u})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}

func (c *Client) SetPassword(ctx context.Context, id, password string, temporary bool) error {
	cred := Credential{Type: "password", Value: password, Temporary: temporary}
	resp, err := c.do(ctx, call{method: http.MethodPut, path: c.realmPath("/users/%s/reset-password", id), body: cred})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}

// SendActionEmail asks the realm to email the user a link executing the
// given required actions (e.g. UPDATE_PASSWORD).
func (c *Client) SendActionEmail(ctx context.Context, id string, actions []string) error {
	query := map[string]string{}
	if c.cfg.AppClientID != "" {
		query["client_id"] = c.cfg.AppClientID
	}
	if c.cfg.RedirectURI != "" {
		query["redirect_uri"] = c.cfg.RedirectURI
	}
	resp, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   c.realmPath("/users/%s/execute-actions-email", id),
		query:  query,
		body:   actions,
	})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}

func (c *Client) UserRealmRoles(ctx context.Context, id string) ([]Role, error) {
	var roles []Role
	resp, err := c.do(ctx, call{method: http.MethodGet, path: c.realmPath("/users/%s/role-mappings/realm", id), out: &roles})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, normalizeError(resp)
	}
	return roles, nil
}

// CreateRealmRoleIfMissing creates a realm role; an already-exists conflict
// counts as success.
func (c *Client) CreateRealmRoleIfMissing(ctx context.Context, name string) error {
	resp, err := c.do(ctx, call{method: http.MethodPost, path: c.realmPath("/roles"), body: Role{Name: name}})
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusConflict {
		return nil
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}

func (c *Client) RealmRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	resp, err := c.do(ctx, call{method: http.MethodGet, path: c.realmPath("/roles/%s", name), out: &role})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, apperr.New(apperr.NotFound, "realm role %s not found", name)
	}
	if resp.IsError() {
		return nil, normalizeError(resp)
	}
	return &role, nil
}

func (c *Client) AddRealmRolesToUser(ctx context.Context, id string, roles []Role) error {
	resp, err := c.do(ctx, call{method: http.MethodPost, path: c.realmPath("/users/%s/role-mappings/realm", id), body: roles})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}

func (c *Client) RemoveRealmRolesFromUser(ctx context.Context, id string, roles []Role) error {
	resp, err := c.do(ctx, call{method: http.MethodDelete, path: c.realmPath("/users/%s/role-mappings/realm", id), body: roles})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return normalizeError(resp)
	}
	return nil
}
