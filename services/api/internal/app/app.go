package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scitrek/internal/usertoken"
	"scitrek/pkg/auth"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
	"scitrek/pkg/storage"
	"scitrek/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Blobs       storage.BlobStore
	Queue       queue.TaskQueue
	Tokens      *usertoken.Manager
}

// App is the platform core: classrooms, workbooks, inbox, quizzes. All
// slow work (imports, seeding, fan-out) is handed to the worker through
// the task queue.
type App struct {
	store         store.Store
	blobs         storage.BlobStore
	queue         queue.TaskQueue
	tokens        *usertoken.Manager
	presignExpiry time.Duration
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("task queue required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	return &App{
		store:         dataStore,
		blobs:         cfg.Blobs,
		queue:         cfg.Queue,
		tokens:        cfg.Tokens,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// Login authenticates a user and returns an access token. A student
// login also queues inbox seeding so first-time users find their
// welcome messages waiting.
func (a *App) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	user, err := a.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return "", domain.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", domain.User{}, ErrAccountDisabled
	}
	token, err := a.tokens.Issue(usertoken.Claims{
		UserID:    user.ID,
		IsStudent: user.IsStudent,
		IsTeacher: user.IsTeacher,
	})
	if err != nil {
		return "", domain.User{}, fmt.Errorf("issue token: %w", err)
	}
	if user.IsStudent {
		a.enqueue(ctx, queue.KindInboxSeed, user.ID)
	}
	return token, user, nil
}

// GetUser loads a user by id.
func (a *App) GetUser(id string) (domain.User, error) {
	user, err := a.store.GetUser(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// enqueue hands a task to the worker; failures are logged, not fatal,
// so the triggering request still succeeds.
func (a *App) enqueue(ctx context.Context, kind, targetID string) {
	if _, err := a.queue.Enqueue(ctx, kind, targetID); err != nil {
		slog.Error("enqueue task failed", "kind", kind, "target_id", targetID, "err", err)
	}
}
