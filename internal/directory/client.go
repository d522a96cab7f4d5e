package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"example.com/planboard/internal/apperr"
)

// User is a primary-directory account.
type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

type CreateUserParams struct {
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name,omitempty"`
	Password    string         `json:"password"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// API is the slice of the directory's user-management surface this service
// consumes. The directory itself is an external collaborator.
type API interface {
	UserFromSession(ctx context.Context, sessionToken string) (*User, error)
	ListUsers(ctx context.Context, page, perPage int) ([]User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, p CreateUserParams) (*User, error)
	SetPassword(ctx context.Context, id, password string) error
	UpdateAppMetadata(ctx context.Context, id string, meta map[string]any) error
}

// Client is the HTTP implementation, authenticated with the service key.
type Client struct {
	baseURL    string
	serviceKey string
	http       *resty.Client
}

func NewClient(baseURL, serviceKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		http:       resty.New().SetTimeout(timeout),
	}
}

func (c *Client) admin(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetHeader("X-Service-Key", c.serviceKey)
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return apperr.Wrap(apperr.UpstreamUnavailable, err, "directory unavailable")
	}
	if resp.IsError() {
		kind := apperr.UpstreamRejected
		if resp.StatusCode() >= 500 {
			kind = apperr.UpstreamUnavailable
		}
		return apperr.New(kind, "directory %s failed: %s", op, resp.Status())
	}
	return nil
}

// UserFromSession resolves a session bearer token to the calling user.
func (c *Client) UserFromSession(ctx context.Context, sessionToken string) (*User, error) {
	var u User
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(sessionToken).
		SetResult(&u).
		Get(c.baseURL + "/api/v1/users/me")
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "directory unavailable")
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, apperr.New(apperr.Unauthenticated, "invalid session token")
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.UpstreamRejected, "directory session check failed: %s", resp.Status())
	}
	return &u, nil
}

func (c *Client) ListUsers(ctx context.Context, page, perPage int) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	resp, err := c.admin(ctx).
		SetQueryParams(map[string]string{
			"page":     fmt.Sprintf("%d", page),
			"per_page": fmt.Sprintf("%d", perPage),
		}).
		SetResult(&out).
		Get(c.baseURL + "/api/v1/users")
	if err := c.check(resp, err, "list users"); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) FindUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	resp, err := c.admin(ctx).SetResult(&u).Get(c.baseURL + "/api/v1/users/" + id)
	if err != nil {
		return nil, apperr.Wrap(apperr.UpstreamUnavailable, err, "directory unavailable")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, apperr.New(apperr.NotFound, "directory user %s not found", id)
	}
	if resp.IsError() {
		return nil, apperr.New(apperr.UpstreamRejected, "directory lookup failed: %s", resp.Status())
	}
	return &u, nil
}

func (c *Client) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	var u User
	resp, err := c.admin(ctx).SetBody(p).SetResult(&u).Post(c.baseURL + "/api/v1/users")
	if err := c.check(resp, err, "create user"); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) SetPassword(ctx context.Context, id, password string) error {
	resp, err := c.admin(ctx).
		SetBody(map[string]string{"password": password}).
		Put(c.baseURL + "/api/v1/users/" + id + "/password")
	return c.check(resp, err, "set password")
}

// UpdateAppMetadata merges meta into the user's app_metadata server-side.
func (c *Client) UpdateAppMetadata(ctx context.Context, id string, meta map[string]any) error {
	resp, err := c.admin(ctx).
		SetBody(map[string]any{"app_metadata": meta}).
		Patch(c.baseURL + "/api/v1/users/" + id + "/metadata")
	return c.check(resp, err, "update metadata")
}
