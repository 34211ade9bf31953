package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/queue"
)

// ScheduleMessageInput is a teacher announcement for one classroom.
type ScheduleMessageInput struct {
	ClassroomID string    `json:"classroomId"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// ScheduleMessage records an announcement. Messages scheduled in the
// past (or now) are dispatched immediately; future ones wait for the
// worker's dispatch loop.
func (a *App) ScheduleMessage(ctx context.Context, teacher domain.User, in ScheduleMessageInput) (domain.ScheduledMessage, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return domain.ScheduledMessage{}, fmt.Errorf("%w: subject required", ErrValidation)
	}
	if strings.TrimSpace(in.Body) == "" {
		return domain.ScheduledMessage{}, fmt.Errorf("%w: body required", ErrValidation)
	}
	if _, err := a.GetClassroom(in.ClassroomID); err != nil {
		return domain.ScheduledMessage{}, fmt.Errorf("%w: unknown classroom", ErrValidation)
	}
	now := time.Now().UTC()
	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	msg := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: in.ClassroomID,
		Subject:     subject,
		Body:        in.Body,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   now,
	}
	if err := a.store.CreateScheduledMessage(msg); err != nil {
		return domain.ScheduledMessage{}, err
	}
	if !msg.ScheduledAt.After(now) {
		a.enqueue(ctx, queue.KindMessageDispatch, msg.ID)
	}
	return msg, nil
}

// ListScheduledMessages returns a classroom's announcements.
func (a *App) ListScheduledMessages(classroomID string) ([]domain.ScheduledMessage, error) {
	if _, err := a.GetClassroom(classroomID); err != nil {
		return nil, err
	}
	return a.store.ListScheduledMessages(classroomID)
}
