package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// DispatchScheduled delivers one scheduled message to every student in
// its classroom, sent from the classroom's teacher, then marks it sent.
// The sent check runs inside the delivery transaction so a second
// dispatch of the same target is a no-op rather than a duplicate
// fan-out. Announcements go out as the teacher; the system sender's
// (sender, recipient, subject) triplets belong to the inbox seeder.
func (a *App) DispatchScheduled(ctx context.Context, scheduledID string) error {
	senderID, students, err := a.rosterFor(scheduledID)
	if err != nil {
		return err
	}
	return a.store.Transact(func(tx store.Store) error {
		sm, err := tx.GetScheduledMessage(scheduledID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if sm.Sent {
			return nil
		}
		now := time.Now().UTC()
		for _, student := range students {
			msg := domain.Message{
				ID:            util.NewID(),
				SenderID:      senderID,
				RecipientID:   student.UserID,
				Subject:       sm.Subject,
				Body:          sm.Body,
				Timestamp:     now,
				AttachmentKey: sm.AttachmentKey,
			}
			if err := tx.CreateMessage(msg); err != nil {
				// Already delivered with this subject; keep going.
				if errors.Is(err, store.ErrDuplicate) {
					continue
				}
				return fmt.Errorf("deliver to %s: %w", student.UserID, err)
			}
		}
		return tx.MarkScheduledMessageSent(sm.ID, now)
	})
}

// DispatchDue enqueues delivery for every unsent message whose time has
// passed. The worker runs this on a ticker.
func (a *App) DispatchDue(ctx context.Context) (int, error) {
	due, err := a.store.ListDueScheduledMessages(time.Now().UTC())
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, sm := range due {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}
		if err := a.DispatchScheduled(ctx, sm.ID); err != nil {
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}

// rosterFor resolves the classroom teacher (the announcement's sender)
// and the student roster. A deleted target or classroom drains the job.
func (a *App) rosterFor(scheduledID string) (string, []domain.StudentProfile, error) {
	sm, err := a.store.GetScheduledMessage(scheduledID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, err
	}
	classroom, err := a.store.GetClassroom(sm.ClassroomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, nil
		}
		return "", nil, err
	}
	students, err := a.store.ListStudentsByClassroom(sm.ClassroomID)
	if err != nil {
		return "", nil, err
	}
	return classroom.TeacherID, students, nil
}
