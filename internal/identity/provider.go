package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Store is the persistence the identity provider needs
type Store interface {
	interfaces.ProfileStore
	interfaces.TokenStore
}

// Config holds token and hashing parameters
type Config struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Issuer     string
}

// Session is an authenticated user snapshot. It is never mutated after creation.
type Session struct {
	Token     string     `json:"token"`
	TokenID   string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      types.User `json:"user"`
}

// EventKind tags a session change
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// SessionEvent is delivered to OnSessionChange listeners
type SessionEvent struct {
	Kind    EventKind
	UserID  string
	Session *Session
}

// SignUpRequest is the registration form
type SignUpRequest struct {
	Email     string     `json:"email" validate:"required,email"`
	Password  string     `json:"password" validate:"required,min=8,max=72"`
	FirstName string     `json:"first_name" validate:"required,max=100"`
	LastName  string     `json:"last_name" validate:"required,max=100"`
	Role      types.Role `json:"role" validate:"required,oneof=mentor participant"`
}

// claims carried by issued tokens
type claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

type listener struct {
	id int64
	fn func(SessionEvent)
}

// Provider signs users up and in, and validates their tokens
// ARCHITECTURAL DISCOVERY: One provider per process with explicit listener
// registration; no package-level current-user state
type Provider struct {
	store    Store
	config   Config
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger

	listenersMu sync.Mutex
	listeners   atomic.Pointer[[]listener]
	nextID      int64
}

// DefaultIssuer signs and verifies tokens when Config.Issuer is empty
const DefaultIssuer = "classhub"

// NewProvider creates an identity provider
func NewProvider(store Store, config Config, logger *zap.Logger) (*Provider, error) {
	if config.Secret == "" {
		return nil, ErrMissingSecret
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		store:    store,
		config:   config,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
	empty := []listener{}
	p.listeners.Store(&empty)
	return p, nil
}

// SignUp registers a profile and returns a signed-in session
func (p *Provider) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := p.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := types.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		CreatedAt: p.now().UTC(),
	}
	if err := p.store.CreateUser(ctx, &user, string(hash)); err != nil {
		if errors.Is(err, types.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	session, err := p.issue(user)
	if err != nil {
		return nil, err
	}
	p.logger.Info("User signed up",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	p.emit(SessionEvent{Kind: EventSignedIn, UserID: user.ID, Session: session})
	return session, nil
}

// SignIn checks credentials and returns a new session
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, hash, err := p.store.GetCredentials(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			return nil, types.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, types.ErrInvalidCredentials
	}

	session, err := p.issue(*user)
	if err != nil {
		return nil, err
	}
	p.logger.Info("User signed in", zap.String("user_id", user.ID))
	p.emit(SessionEvent{Kind: EventSignedIn, UserID: user.ID, Session: session})
	return session, nil
}

// SignOut revokes the token until it would have expired anyway
func (p *Provider) SignOut(ctx context.Context, token string) error {
	c, err := p.parse(token)
	if err != nil {
		return err
	}
	if err := p.store.RevokeToken(ctx, c.ID, c.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	p.logger.Info("User signed out", zap.String("user_id", c.Subject))
	p.emit(SessionEvent{Kind: EventSignedOut, UserID: c.Subject})
	return nil
}

// Authenticate resolves a bearer token to a session
func (p *Provider) Authenticate(ctx context.Context, token string) (*Session, error) {
	c, err := p.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := p.store.IsTokenRevoked(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if revoked {
		return nil, types.ErrInvalidToken
	}

	user, err := p.store.GetUser(ctx, c.Subject)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			return nil, types.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	return &Session{
		Token:     token,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
		User:      *user,
	}, nil
}

// OnSessionChange registers fn for sign-in and sign-out events and returns
// a function that removes it
func (p *Provider) OnSessionChange(fn func(SessionEvent)) func() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()

	p.nextID++
	id := p.nextID
	current := *p.listeners.Load()
	next := make([]listener, len(current), len(current)+1)
	copy(next, current)
	next = append(next, listener{id: id, fn: fn})
	p.listeners.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() { p.removeListener(id) })
	}
}

func (p *Provider) removeListener(id int64) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()

	current := *p.listeners.Load()
	next := make([]listener, 0, len(current))
	for _, l := range current {
		if l.id != id {
			next = append(next, l)
		}
	}
	p.listeners.Store(&next)
}

// Close drops every listener
func (p *Provider) Close() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	empty := []listener{}
	p.listeners.Store(&empty)
}

// PurgeExpiredRevocations forgets revocations of tokens that have expired
func (p *Provider) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	purged, err := p.store.PurgeRevokedTokens(ctx, p.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		p.logger.Debug("Purged expired revocations", zap.Int64("count", purged))
	}
	return purged, nil
}

// emit runs listeners synchronously against the snapshot taken at call time
func (p *Provider) emit(event SessionEvent) {
	for _, l := range *p.listeners.Load() {
		l.fn(event)
	}
}

func (p *Provider) issue(user types.User) (*Session, error) {
	now := p.now()
	expires := now.Add(p.config.TokenTTL)
	c := claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			Issuer:    p.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(p.config.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{
		Token:     signed,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
		User:      user,
	}, nil
}

func (p *Provider) parse(token string) (*claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	// TECHNICAL DISCOVERY: Claims are validated against the provider clock
	// rather than the package-level jwt.TimeFunc
	parser := jwt.Parser{SkipClaimsValidation: true}
	var c claims
	parsed, err := parser.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(p.config.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, types.ErrInvalidToken
	}
	if c.ID == "" || c.Subject == "" || !c.VerifyIssuer(p.config.Issuer, true) || !c.VerifyExpiresAt(p.now(), true) {
		return nil, types.ErrInvalidToken
	}
	return &c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", types.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %v", types.ErrValidation, err)
}
