package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentityProvider is the authentication capability the rest of the app
// depends on. Implementations decide how credentials are checked.
type IdentityProvider interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, email, password, name string) (*Session, error)
	Logout(ctx context.Context, userID string) error
	CurrentUser(ctx context.Context, userID string) (*User, error)
}

type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

// ProfileStores returns the key-value namespace of one profile.
type ProfileStores func(userID string) KVStore

var identityNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("greenprint.local"))

// UserIDForEmail derives a stable profile id so data survives logout and login.
func UserIDForEmail(email string) string {
	return uuid.NewSHA1(identityNamespace, []byte(strings.ToLower(strings.TrimSpace(email)))).String()
}

// MockIdentityProvider accepts any non-empty credentials. It keeps the user
// record in the profile namespace and issues signed session tokens.
type MockIdentityProvider struct {
	profiles  ProfileStores
	signToken TokenSigner
	tokenTTL  time.Duration
	logger    *slog.Logger
}

func NewMockIdentityProvider(profiles ProfileStores, signer TokenSigner, ttl time.Duration, logger *slog.Logger) *MockIdentityProvider {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MockIdentityProvider{profiles: profiles, signToken: signer, tokenTTL: ttl, logger: logger}
}

func (p *MockIdentityProvider) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	return p.open(ctx, User{ID: UserIDForEmail(email), Name: name, Email: email})
}

func (p *MockIdentityProvider) Register(ctx context.Context, email, password, name string) (*Session, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || strings.TrimSpace(password) == "" || name == "" {
		return nil, NewInvalidError("name/email/password required")
	}
	return p.open(ctx, User{ID: UserIDForEmail(email), Name: name, Email: email})
}

func (p *MockIdentityProvider) open(ctx context.Context, u User) (*Session, error) {
	if p.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	if err := setJSON(ctx, p.profiles(u.ID), KeyUser, u); err != nil {
		return nil, err
	}
	token, err := p.signToken(u.ID, u.Email, p.tokenTTL)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "session opened", "uid", u.ID)
	return &Session{Token: token, User: u}, nil
}

func (p *MockIdentityProvider) Logout(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return NewUnauthorizedError("not signed in")
	}
	return p.profiles(userID).Remove(ctx, KeyUser)
}

// CurrentUser returns nil, nil when the profile has no signed-in user.
func (p *MockIdentityProvider) CurrentUser(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var u User
	ok, err := getJSON(ctx, p.profiles(userID), KeyUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}
