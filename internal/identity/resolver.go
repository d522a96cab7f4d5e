package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"example.com/planboard/internal/apperr"
	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/model"
	"example.com/planboard/internal/realm"
	"example.com/planboard/internal/store"
)

// maxScanPages bounds the directory-wide email scan; the directory's search
// API has no exact email filter, so resolution pages through listings.
const (
	maxScanPages = 20
	scanPageSize = 100
)

// providerMarker tags directory accounts mirrored into the external realm.
const providerMarker = "realm"

// RealmAPI is the slice of the realm admin client the resolver needs.
type RealmAPI interface {
	FindUserByEmail(ctx context.Context, email string) (*realm.User, error)
	CreateUser(ctx context.Context, u realm.User) (string, error)
}

// Resolver finds-or-creates a user in both identity stores and keeps the
// durable link between them.
type Resolver struct {
	realm RealmAPI
	dir   directory.API
	links store.IdentityLinkStore
	log   *zap.Logger
}

func NewResolver(realmAPI RealmAPI, dir directory.API, links store.IdentityLinkStore, log *zap.Logger) *Resolver {
	return &Resolver{realm: realmAPI, dir: dir, links: links, log: log}
}

// EnsureLinkedUser resolves email to a linked (directory, realm) account
// pair, creating whichever side is missing. created is true only when the
// realm account was minted by this call. Partial failure leaves orphaned
// state that the next call heals; every lookup-then-create step is
// idempotent.
func (r *Resolver) EnsureLinkedUser(ctx context.Context, email, displayName string) (*model.IdentityLink, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, apperr.New(apperr.InvalidArgument, "email is required")
	}

	realmUser, err := r.realm.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("find realm user: %w", err)
	}
	created := false
	var realmUserID string
	if realmUser != nil {
		realmUserID = realmUser.ID
	} else {
		pw, err := randomSecret()
		if err != nil {
			return nil, false, err
		}
		realmUserID, err = r.realm.CreateUser(ctx, realm.User{
			Username:        email,
			Email:           email,
			FirstName:       displayName,
			Enabled:         true,
			EmailVerified:   true,
			RequiredActions: []string{"UPDATE_PASSWORD"},
			Credentials:     []realm.Credential{{Type: "password", Value: pw, Temporary: false}},
		})
		if err != nil {
			return nil, false, fmt.Errorf("create realm user: %w", err)
		}
		created = true
		r.log.Info("created realm user", zap.String("email", email))
	}

	dirUser, err := r.findDirectoryUser(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if dirUser == nil {
		pw, err := randomSecret()
		if err != nil {
			return nil, false, err
		}
		dirUser, err = r.dir.CreateUser(ctx, directory.CreateUserParams{
			Email:       email,
			DisplayName: displayName,
			Password:    pw,
			AppMetadata: map[string]any{"provider": providerMarker},
		})
		if err != nil {
			return nil, false, fmt.Errorf("create directory user: %w", err)
		}
		r.log.Info("created directory user", zap.String("email", email))
	}

	name := displayName
	if name == "" {
		name = dirUser.DisplayName
	}
	link := &model.IdentityLink{
		UserID:      dirUser.ID,
		RealmUserID: realmUserID,
		Email:       email,
		DisplayName: name,
	}
	if err := r.links.Upsert(link); err != nil {
		return nil, false, fmt.Errorf("persist identity link: %w", err)
	}

	if err := r.mirrorProviderMarker(ctx, dirUser); err != nil {
		return nil, false, fmt.Errorf("mirror provider marker: %w", err)
	}

	return link, created, nil
}

// findDirectoryUser scans the paginated listing for a case-insensitive
// email match, giving up after maxScanPages.
func (r *Resolver) findDirectoryUser(ctx context.Context, email string) (*directory.User, error) {
	for page := 0; page < maxScanPages; page++ {
		users, err := r.dir.ListUsers(ctx, page, scanPageSize)
		if err != nil {
			return nil, fmt.Errorf("scan directory page %d: %w", page, err)
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, email) {
				return &users[i], nil
			}
		}
		if len(users) < scanPageSize {
			return nil, nil
		}
	}
	r.log.Warn("directory scan hit the page cap", zap.String("email", email))
	return nil, nil
}

// mirrorProviderMarker merges the realm marker into the user's providers
// metadata so auth UI can show "signed in via external IdP". Existing
// entries are preserved.
func (r *Resolver) mirrorProviderMarker(ctx context.Context, u *directory.User) error {
	var providers []any
	if existing, ok := u.AppMetadata["providers"].([]any); ok {
		for _, p := range existing {
			if s, ok := p.(string); ok && s == providerMarker {
				return nil
			}
		}
		providers = existing
	}
	providers = append(providers, providerMarker)
	return r.dir.UpdateAppMetadata(ctx, u.ID, map[string]any{"providers": providers})
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
