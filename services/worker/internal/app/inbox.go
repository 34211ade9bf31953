package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

const (
	seedMaxAttempts = 3
	seedRetryDelay  = 50 * time.Millisecond
)

// SeedResult aggregates what a reconciliation run changed.
type SeedResult struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	DeletedDupes int `json:"deletedDupes"`
}

func (r *SeedResult) add(other SeedResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.DeletedDupes += other.DeletedDupes
}

// SeedInboxForUser converges one student's inbox to the template set:
// exactly one message per (sender, recipient, subject) carrying the
// current template body. Running it again is a no-op.
func (a *App) SeedInboxForUser(ctx context.Context, userID string) (SeedResult, error) {
	user, err := a.store.GetUser(userID)
	if err != nil {
		return SeedResult{}, fmt.Errorf("load recipient: %w", err)
	}
	if !user.IsStudent || !user.IsActive {
		return SeedResult{}, nil
	}
	return a.reconcileRecipient(ctx, user.ID)
}

// SeedInboxAll runs the per-recipient procedure over every active
// student with bounded concurrency. Per-student failures abort the run;
// counts reflect students processed before the failure surfaced.
func (a *App) SeedInboxAll(ctx context.Context) (SeedResult, error) {
	students, err := a.store.ListActiveStudents()
	if err != nil {
		return SeedResult{}, fmt.Errorf("list students: %w", err)
	}
	var (
		mu    sync.Mutex
		total SeedResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.seedConcurrency)
	for _, student := range students {
		student := student
		g.Go(func() error {
			result, err := a.reconcileRecipient(ctx, student.ID)
			if err != nil {
				return fmt.Errorf("seed inbox for %s: %w", student.Username, err)
			}
			mu.Lock()
			total.add(result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

// reconcileRecipient applies every template inside one transaction.
// Concurrent seeds for the same recipient can race on the insert; the
// uniqueness index turns the loser into ErrDuplicate, and a short
// bounded retry converges on the update path instead.
func (a *App) reconcileRecipient(ctx context.Context, recipientID string) (SeedResult, error) {
	var result SeedResult
	var lastErr error
	for attempt := 0; attempt < seedMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return SeedResult{}, err
		}
		result = SeedResult{}
		lastErr = a.store.Transact(func(tx store.Store) error {
			for _, tmpl := range InboxTemplates {
				r, err := reconcileTemplate(tx, a.sender.ID, recipientID, tmpl)
				if err != nil {
					return err
				}
				result.add(r)
			}
			return nil
		})
		if lastErr == nil {
			return result, nil
		}
		if !errors.Is(lastErr, store.ErrDuplicate) {
			return SeedResult{}, lastErr
		}
		select {
		case <-ctx.Done():
			return SeedResult{}, ctx.Err()
		case <-time.After(seedRetryDelay):
		}
	}
	return SeedResult{}, fmt.Errorf("inbox seed did not converge after %d attempts: %w", seedMaxAttempts, lastErr)
}

// reconcileTemplate enforces the per-triplet invariant: none → create,
// one → update body if stale, many → keep the oldest, update it, delete
// the rest. Read state and timestamps on kept rows are never touched.
func reconcileTemplate(tx store.Store, senderID, recipientID string, tmpl InboxTemplate) (SeedResult, error) {
	existing, err := tx.MessagesBySubject(senderID, recipientID, tmpl.Subject)
	if err != nil {
		return SeedResult{}, err
	}
	if len(existing) == 0 {
		msg := domain.Message{
			ID:          util.NewID(),
			SenderID:    senderID,
			RecipientID: recipientID,
			Subject:     tmpl.Subject,
			Body:        tmpl.Body,
			Timestamp:   time.Now().UTC(),
		}
		if err := tx.CreateMessage(msg); err != nil {
			return SeedResult{}, err
		}
		return SeedResult{Created: 1}, nil
	}

	var result SeedResult
	oldest := existing[0]
	if len(existing) > 1 {
		stale := make([]string, 0, len(existing)-1)
		for _, dupe := range existing[1:] {
			stale = append(stale, dupe.ID)
		}
		if err := tx.DeleteMessages(stale); err != nil {
			return SeedResult{}, err
		}
		result.DeletedDupes = len(stale)
	}
	if oldest.Body != tmpl.Body {
		if err := tx.UpdateMessageBody(oldest.ID, tmpl.Body); err != nil {
			return SeedResult{}, err
		}
		result.Updated = 1
	}
	return result, nil
}
