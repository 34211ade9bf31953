package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/auth"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
	"scitrek/pkg/storage"
	"scitrek/pkg/store"
)

// Config holds worker runtime configuration.
type Config struct {
	DatabaseURL     string
	Store           store.Store
	Blobs           storage.BlobStore
	SeedConcurrency int
}

// App runs background tasks: workbook imports, inbox reconciliation,
// and scheduled message dispatch.
type App struct {
	store           store.Store
	blobs           storage.BlobStore
	sender          domain.User
	seedConcurrency int

	// swapped out by tests
	extract func(path string) ([]string, error)
}

// New constructs the worker core. The system sender identity is
// resolved once here so task handlers never race on its creation.
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
	seedConcurrency := cfg.SeedConcurrency
	if seedConcurrency <= 0 {
		seedConcurrency = 4
	}
	sender, err := ensureSystemSender(dataStore)
	if err != nil {
		return nil, fmt.Errorf("resolve system sender: %w", err)
	}
	return &App{
		store:           dataStore,
		blobs:           cfg.Blobs,
		sender:          sender,
		seedConcurrency: seedConcurrency,
		extract:         extractPageText,
	}, nil
}

// Handle dispatches one queued task to its handler.
func (a *App) Handle(ctx context.Context, job queue.JobStatus) error {
	log := util.LoggerFromContext(ctx).With("job_id", job.ID, "kind", job.Kind, "target_id", job.TargetID)
	switch job.Kind {
	case queue.KindWorkbookImport:
		if err := a.ImportWorkbook(ctx, job.TargetID); err != nil {
			log.Error("workbook import failed", "err", err)
			return err
		}
		return nil
	case queue.KindInboxSeed:
		result, err := a.SeedInboxForUser(ctx, job.TargetID)
		if err != nil {
			log.Error("inbox seed failed", "err", err)
			return err
		}
		log.Info("inbox seeded", "created", result.Created, "updated", result.Updated, "deleted_dupes", result.DeletedDupes)
		return nil
	case queue.KindInboxSeedAll:
		result, err := a.SeedInboxAll(ctx)
		if err != nil {
			log.Error("bulk inbox seed failed", "err", err)
			return err
		}
		log.Info("bulk inbox seeded", "created", result.Created, "updated", result.Updated, "deleted_dupes", result.DeletedDupes)
		return nil
	case queue.KindMessageDispatch:
		if err := a.DispatchScheduled(ctx, job.TargetID); err != nil {
			log.Error("scheduled dispatch failed", "err", err)
			return err
		}
		return nil
	default:
		// Unknown kinds are not retryable; log and drop.
		log.Warn("unknown task kind, dropping")
		return nil
	}
}

// ensureSystemSender gets or creates the virtual_scientist identity
// with a generated credential nobody can log in with.
func ensureSystemSender(dataStore store.Store) (domain.User, error) {
	sender, err := dataStore.GetUserByUsername(SystemSenderUsername)
	if err == nil {
		return sender, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := auth.HashPassword(auth.RandomPassword(25))
	if err != nil {
		return domain.User{}, err
	}
	sender = domain.User{
		ID:           util.NewID(),
		Username:     SystemSenderUsername,
		FirstName:    "Virtual",
		LastName:     "Scientist",
		PasswordHash: hash,
		IsStudent:    false,
		IsTeacher:    false,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := dataStore.CreateUser(sender); err != nil {
		// Lost a creation race with another worker instance.
		if errors.Is(err, store.ErrDuplicate) {
			return dataStore.GetUserByUsername(SystemSenderUsername)
		}
		return domain.User{}, err
	}
	return sender, nil
}
