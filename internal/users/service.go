package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	UsernameTaken(ctx context.Context, username, excludeID string) (bool, error)
	Insert(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	List(ctx context.Context) ([]User, error)
	// DeleteIfIdle deletes the user atomically unless they own a Pending or
	// Processing order.
	DeleteIfIdle(ctx context.Context, id string) (found, active bool, err error)
}

type Service struct {
	Store  Store
	Tokens *auth.TokenIssuer
	Logger *zap.Logger
	Now    func() time.Time
}

func NewService(store Store, tokens *auth.TokenIssuer, logger *zap.Logger) *Service {
	return &Service{Store: store, Tokens: tokens, Logger: logger, Now: time.Now}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" {
		return User{}, apperr.Validation("username is required")
	}
	if err := validateEmail(email); err != nil {
		return User{}, err
	}
	if err := s.ensureUnique(ctx, username, email, ""); err != nil {
		return User{}, err
	}
	hash, err := hash(in.Password)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      s.Now().UTC(),
	}
	if err := s.Store.Insert(ctx, u); err != nil {
		if postgres.IsUniqueViolation(err) {
			return User{}, apperr.DuplicateName("user", username).With("email", email)
		}
		return User{}, s.fail("insert user", u.ID, err)
	}
	s.Logger.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login checks the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	u, err := s.Store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return Token{}, s.fail("find user", "", err)
	}
	// same answer for unknown user and wrong password
	if u == nil || !auth.CheckPassword(u.HashedPassword, password) {
		return Token{}, apperr.Unauthorized("incorrect username or password")
	}
	if !u.IsActive {
		return Token{}, apperr.Unauthorized("inactive user")
	}
	signed, err := s.Tokens.Issue(u.ID, u.IsAdmin)
	if err != nil {
		return Token{}, apperr.Internal(err)
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresIn: s.Tokens.TTL()}, nil
}

// LoadPrincipal resolves a verified token subject into the request principal.
// The admin flag comes from the database, not the token, so role changes apply immediately.
func (s *Service) LoadPrincipal(ctx context.Context, userID string) (access.Principal, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return access.Principal{}, apperr.Unauthorized("could not validate credentials")
	}
	u, err := s.Store.FindByID(ctx, userID)
	if err != nil {
		return access.Principal{}, s.fail("load principal", userID, err)
	}
	if u == nil {
		return access.Principal{}, apperr.Unauthorized("could not validate credentials")
	}
	if !u.IsActive {
		return access.Principal{}, apperr.Unauthorized("inactive user")
	}
	return access.Principal{ID: u.ID, IsAdmin: u.IsAdmin}, nil
}

func (s *Service) Get(ctx context.Context, p access.Principal, id string) (User, error) {
	if err := access.OwnerOrAdmin(p, id); err != nil {
		return User{}, err
	}
	return s.get(ctx, id)
}

func (s *Service) List(ctx context.Context, p access.Principal) ([]User, error) {
	if err := access.Admin(p); err != nil {
		return nil, err
	}
	out, err := s.Store.List(ctx)
	if err != nil {
		return nil, s.fail("list users", "", err)
	}
	return out, nil
}

// Update applies a self-service patch. Only the account owner may change it.
func (s *Service) Update(ctx context.Context, p access.Principal, id string, patch Patch) (User, error) {
	if err := access.Owner(p, id); err != nil {
		return User{}, err
	}
	u, err := s.get(ctx, id)
	if err != nil {
		return User{}, err
	}

	username, email := u.Username, u.Email
	if patch.Username != nil {
		username = strings.TrimSpace(*patch.Username)
		if username == "" {
			return User{}, apperr.Validation("username is required")
		}
	}
	if patch.Email != nil {
		email = strings.TrimSpace(*patch.Email)
		if err := validateEmail(email); err != nil {
			return User{}, err
		}
	}
	if err := s.ensureUnique(ctx, username, email, u.ID); err != nil {
		return User{}, err
	}
	u.Username, u.Email = username, email
	if patch.Password != nil {
		h, err := hash(*patch.Password)
		if err != nil {
			return User{}, err
		}
		u.HashedPassword = h
	}
	now := s.Now().UTC()
	u.UpdatedAt = &now
	if err := s.Store.Update(ctx, u); err != nil {
		return User{}, s.fail("update user", u.ID, err)
	}
	return u, nil
}

func (s *Service) ChangeRole(ctx context.Context, p access.Principal, id string, isAdmin bool) (User, error) {
	if err := access.Admin(p); err != nil {
		return User{}, err
	}
	u, err := s.get(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.IsAdmin = isAdmin
	now := s.Now().UTC()
	u.UpdatedAt = &now
	if err := s.Store.Update(ctx, u); err != nil {
		return User{}, s.fail("change role", u.ID, err)
	}
	s.Logger.Info("user role changed", zap.String("user_id", u.ID), zap.Bool("is_admin", isAdmin), zap.String("by", p.ID))
	return u, nil
}

// Delete removes the caller's own account unless it still has active orders.
func (s *Service) Delete(ctx context.Context, p access.Principal, id string) error {
	if err := access.Owner(p, id); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("user", id)
	}
	found, active, err := s.Store.DeleteIfIdle(ctx, id)
	if err != nil {
		return s.fail("delete user", id, err)
	}
	if !found {
		return apperr.NotFound("user", id)
	}
	if active {
		return apperr.Conflict(nil, "cannot delete user with active orders")
	}
	s.Logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	existing, err := s.Store.FindByUsername(ctx, username)
	if err != nil {
		return s.fail("find admin", "", err)
	}
	if existing != nil {
		if !existing.IsAdmin {
			s.Logger.Warn("bootstrap admin username belongs to a regular user", zap.String("username", username))
		}
		return nil
	}
	u, err := s.Register(ctx, RegisterInput{Username: username, Email: email, Password: password})
	if err != nil {
		return err
	}
	u.IsAdmin = true
	if err := s.Store.Update(ctx, u); err != nil {
		return s.fail("promote admin", u.ID, err)
	}
	s.Logger.Info("bootstrap admin created", zap.String("user_id", u.ID))
	return nil
}

func (s *Service) get(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, apperr.NotFound("user", id)
	}
	u, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return User{}, s.fail("get user", id, err)
	}
	if u == nil {
		return User{}, apperr.NotFound("user", id)
	}
	return *u, nil
}

func (s *Service) ensureUnique(ctx context.Context, username, email, excludeID string) error {
	taken, err := s.Store.UsernameTaken(ctx, username, excludeID)
	if err != nil {
		return s.fail("check username", excludeID, err)
	}
	if taken {
		return apperr.DuplicateName("user", username)
	}
	taken, err = s.Store.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return s.fail("check email", excludeID, err)
	}
	if taken {
		return apperr.New(apperr.KindDuplicateName, "email already registered").With("email", email)
	}
	return nil
}

func (s *Service) fail(op, userID string, err error) error {
	s.Logger.Error("user store failure", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	return postgres.Translate(err, "user")
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email %q is not a valid address", email)
	}
	return nil
}

func hash(password string) (string, error) {
	h, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return "", apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	return h, nil
}
