package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elonfeng/notepulse/internal/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"
)

// Users is the account store the gate reads and refreshes.
type Users interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, u *store.User) error
	SetApproved(ctx context.Context, owner string, approved bool) error
}

// Billing answers whether an email has an active paid subscription.
type Billing interface {
	IsEntitled(ctx context.Context, email string) (bool, error)
}

// Options configures a Gate.
type Options struct {
	// AdminEmail is always entitled and may manage other accounts.
	AdminEmail  string
	PaymentLink string
	// CacheTTL bounds how long a billing answer is reused.
	CacheTTL time.Duration
}

// Gate checks credentials and entitlement before granting a Session.
type Gate struct {
	users       Users
	billing     Billing
	adminEmail  string
	paymentLink string
	cache       *expirable.LRU[string, bool]
}

// New creates a gate. A nil billing treats every account as entitled.
func New(users Users, billing Billing, opts Options) *Gate {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Gate{
		users:       users,
		billing:     billing,
		adminEmail:  NormalizeEmail(opts.AdminEmail),
		paymentLink: opts.PaymentLink,
		cache:       expirable.NewLRU[string, bool](1024, nil, opts.CacheTTL),
	}
}

// PaymentLink is where unentitled users complete their subscription.
func (g *Gate) PaymentLink() string { return g.paymentLink }

// Authenticate verifies email and password, then entitlement. The stored
// approval flag is refreshed when billing disagrees with it.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (Session, error) {
	email = NormalizeEmail(email)

	u, err := g.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, &AuthError{Kind: InvalidCredential}
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, &AuthError{Kind: InvalidCredential}
	}

	entitled := g.entitled(ctx, u)
	if entitled != u.IsApproved {
		if err := g.users.SetApproved(ctx, u.OwnerID, entitled); err != nil {
			return Session{}, fmt.Errorf("refresh approval: %w", err)
		}
		slog.Info("approval refreshed", "owner", u.OwnerID, "approved", entitled)
	}
	if !entitled {
		return Session{}, &AuthError{Kind: NotEntitled, PaymentLink: g.paymentLink}
	}

	return Session{OwnerID: u.OwnerID, Email: u.Email, Admin: g.isAdmin(u.Email)}, nil
}

// Signup creates an unapproved account. The caller directs the user to
// PaymentLink afterwards.
func (g *Gate) Signup(ctx context.Context, email, password string) (*store.User, error) {
	if g.isAdmin(email) {
		return nil, ErrReservedEmail
	}
	return g.create(ctx, email, password, false)
}

// Provision creates an account on the operator's behalf. Accounts with
// skipBilling are approved immediately and never checked against billing.
func (g *Gate) Provision(ctx context.Context, email, password string, skipBilling bool) (*store.User, error) {
	return g.create(ctx, email, password, skipBilling)
}

func (g *Gate) create(ctx context.Context, email, password string, skipBilling bool) (*store.User, error) {
	email = NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < 4 {
		return nil, ErrWeakPassword
	}

	_, err := g.users.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &store.User{
		OwnerID:        OwnerID(email),
		Email:          email,
		CredentialHash: CredentialHash(email),
		PasswordHash:   string(hash),
		IsApproved:     skipBilling,
		SkipBilling:    skipBilling,
	}
	if err := g.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// isAdmin reports whether email is the configured administrator.
func (g *Gate) isAdmin(email string) bool {
	return g.adminEmail != "" && NormalizeEmail(email) == g.adminEmail
}

func (g *Gate) entitled(ctx context.Context, u *store.User) bool {
	if g.isAdmin(u.Email) || u.SkipBilling || g.billing == nil {
		return true
	}
	if _, hit := g.cache.Get(u.Email); hit {
		return true
	}

	ok, err := g.billing.IsEntitled(ctx, u.Email)
	if err != nil {
		slog.Warn("billing lookup failed, using stored approval", "owner", u.OwnerID, "err", err)
		return u.IsApproved
	}
	// Only positive answers are reused: a user who just paid must get in on
	// the next login.
	if ok {
		g.cache.Add(u.Email, true)
	}
	return ok
}
