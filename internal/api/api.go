package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
	"example.com/planboard/internal/invite"
	"example.com/planboard/internal/model"
)

// InviteService is the invite lifecycle manager's surface as the handlers
// consume it.
type InviteService interface {
	Create(ctx context.Context, caller model.Caller, p invite.CreateParams) (*invite.CreateResult, error)
	Accept(ctx context.Context, caller model.Caller, token string) (*invite.AcceptResult, error)
	Decline(ctx context.Context, caller model.Caller, token string) error
	Cancel(ctx context.Context, caller model.Caller, token string) error
	ListForInvitee(ctx context.Context, caller model.Caller) ([]invite.ReceivedInvite, error)
	ListSent(ctx context.Context, caller model.Caller, pendingOnly bool) ([]invite.SentInvite, error)
	ResyncRoles(ctx context.Context, email string) (added, removed []string, err error)
}

// Bootstrapper re-runs the reserve-admin bootstrap on demand.
type Bootstrapper interface {
	Resync(ctx context.Context) error
}

// SuperAdminChecker guards the admin-only routes.
type SuperAdminChecker interface {
	IsSuperAdmin(userID string) (bool, error)
}

type Handler struct {
	svc    InviteService
	boot   Bootstrapper
	auth   Authenticator
	admins SuperAdminChecker
	log    *zap.Logger
	mux    *gin.Engine
}

func NewHandler(svc InviteService, boot Bootstrapper, auth Authenticator, admins SuperAdminChecker, log *zap.Logger) *Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	h := &Handler{svc: svc, boot: boot, auth: auth, admins: admins, log: log, mux: r}
	h.routes()
	return h
}

// Router returns the underlying http.Handler.
func (h *Handler) Router() *gin.Engine { return h.mux }

func (h *Handler) routes() {
	authed := h.mux.Group("/", h.requireCaller())
	authed.POST("/invite.create", h.inviteCreate)
	authed.POST("/invite.list", h.inviteList)
	authed.POST("/invite.listSent", h.inviteListSent)
	authed.POST("/invite.accept", h.inviteAccept)
	authed.POST("/invite.decline", h.inviteDecline)
	authed.POST("/invite.cancel", h.inviteCancel)

	admin := authed.Group("/", h.requireSuperAdmin())
	admin.POST("/admin.reserveSync", h.adminReserveSync)
	admin.POST("/admin.roleSync", h.adminRoleSync)
}

func (h *Handler) inviteCreate(c *gin.Context) {
	var in struct {
		WorkspaceID string  `json:"workspaceId"`
		Email       string  `json:"email"`
		Role        string  `json:"role"`
		GroupID     *string `json:"groupId"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.svc.Create(c.Request.Context(), caller(c), invite.CreateParams{
		WorkspaceID: in.WorkspaceID,
		Email:       in.Email,
		Role:        model.Role(in.Role),
		GroupID:     in.GroupID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := gin.H{
		"success":      true,
		"actionLink":   res.ActionLink,
		"inviteEmail":  res.Invite.Email,
		"inviteStatus": string(res.Invite.State()),
	}
	if w := joinWarnings(res.Warnings); w != "" {
		out["warning"] = w
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) inviteList(c *gin.Context) {
	items, err := h.svc.ListForInvitee(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	invites := make([]gin.H, 0, len(items))
	for _, it := range items {
		invites = append(invites, gin.H{
			"token":              it.Invite.Token,
			"workspaceId":        it.Invite.WorkspaceID,
			"workspaceName":      it.WorkspaceName,
			"role":               string(it.Invite.Role),
			"inviterEmail":       it.InviterEmail,
			"inviterDisplayName": it.InviterDisplayName,
			"createdAt":          it.Invite.CreatedAt.Format(time.RFC3339),
			"expiresAt":          it.Invite.ExpiresAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invites": invites})
}

func (h *Handler) inviteListSent(c *gin.Context) {
	var in struct {
		PendingOnly bool `json:"pendingOnly"`
	}
	// empty body means no filter
	_ = c.ShouldBindJSON(&in)
	items, err := h.svc.ListSent(c.Request.Context(), caller(c), in.PendingOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	invites := make([]gin.H, 0, len(items))
	for _, it := range items {
		row := gin.H{
			"token":         it.Invite.Token,
			"workspaceId":   it.Invite.WorkspaceID,
			"workspaceName": it.WorkspaceName,
			"email":         it.Invite.Email,
			"role":          string(it.Invite.Role),
			"status":        string(it.Status),
			"isPending":     it.IsPending,
			"createdAt":     it.Invite.CreatedAt.Format(time.RFC3339),
			"expiresAt":     it.Invite.ExpiresAt.Format(time.RFC3339),
		}
		if at := it.Invite.RespondedAt(); at != nil {
			row["respondedAt"] = at.Format(time.RFC3339)
		}
		invites = append(invites, row)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invites": invites})
}

func (h *Handler) inviteAccept(c *gin.Context) {
	token, ok := h.bindToken(c)
	if !ok {
		return
	}
	res, err := h.svc.Accept(c.Request.Context(), caller(c), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := gin.H{"success": true, "workspaceId": res.WorkspaceID}
	if w := joinWarnings(res.Warnings); w != "" {
		out["warning"] = w
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) inviteDecline(c *gin.Context) {
	token, ok := h.bindToken(c)
	if !ok {
		return
	}
	if err := h.svc.Decline(c.Request.Context(), caller(c), token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) inviteCancel(c *gin.Context) {
	token, ok := h.bindToken(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), caller(c), token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) adminReserveSync(c *gin.Context) {
	if err := h.boot.Resync(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) adminRoleSync(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	added, removed, err := h.svc.ResyncRoles(c.Request.Context(), in.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "added": added, "removed": removed})
}

func (h *Handler) bindToken(c *gin.Context) (string, bool) {
	var in struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return "", false
	}
	return in.Token, true
}

// fail renders exactly one display-safe error string; internals are logged,
// never leaked.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err)})
}

func joinWarnings(warnings []string) string {
	return strings.Join(warnings, "; ")
}
