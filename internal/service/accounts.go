package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"taskflow/internal/auth"
	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"
	"taskflow/internal/logging"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

// Session is the result of a successful register or login.
type Session struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

type Accounts struct {
	users  UserStore
	tasks  TaskStore
	hasher PasswordHasher
	tokens TokenIssuer
	valid  *validator.Validate
	log    logging.Logger
	now    func() time.Time
}

func NewAccounts(users UserStore, tasks TaskStore, hasher PasswordHasher, tokens TokenIssuer, log logging.Logger) *Accounts {
	return &Accounts{
		users:  users,
		tasks:  tasks,
		hasher: hasher,
		tokens: tokens,
		valid:  newValidator(),
		log:    log,
		now:    time.Now,
	}
}

// Register creates a user and opens a session for it.
func (a *Accounts) Register(ctx context.Context, email, password string) (*Session, error) {
	email, err := credentials(a.valid, email, password)
	if err != nil {
		return nil, err
	}

	existing, err := a.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, errors.ErrDuplicateEmail
	case err != nil && !stderrors.Is(err, errors.ErrNotFound):
		return nil, fmt.Errorf("%w: lookup user: %v", errors.ErrInternal, err)
	}

	digest, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		JoinedAt:     a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, &user); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateEmail) {
			return nil, errors.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%w: create user: %v", errors.ErrInternal, err)
	}

	a.log.Info(ctx, "user registered", "user_id", user.ID)
	return a.openSession(user)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := credentials(a.valid, email, password)
	if err != nil {
		return nil, errors.ErrInvalidCredentials
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: lookup user: %v", errors.ErrInternal, err)
	}

	if !a.hasher.Verify(password, user.PasswordHash) {
		return nil, errors.ErrInvalidCredentials
	}

	a.log.Info(ctx, "user logged in", "user_id", user.ID)
	return a.openSession(*user)
}

// DeleteAccount removes every task of ownerID and then the user itself.
// Tokens already issued to the user stay verifiable until they expire; with
// no user row and no tasks left they can reach nothing.
func (a *Accounts) DeleteAccount(ctx context.Context, ownerID string) error {
	removed, err := a.tasks.DeleteTasksByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: delete tasks: %v", errors.ErrInternal, err)
	}

	deleted, err := a.users.DeleteUser(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: delete user: %v", errors.ErrInternal, err)
	}
	if !deleted {
		return errors.ErrNotFound
	}

	a.log.Info(ctx, "account deleted", "user_id", ownerID, "tasks_removed", removed)
	return nil
}

func (a *Accounts) openSession(user models.User) (*Session, error) {
	token, expiresAt, err := a.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

var _ TokenIssuer = (*auth.TokenCodec)(nil)
var _ PasswordHasher = (*auth.Hasher)(nil)
