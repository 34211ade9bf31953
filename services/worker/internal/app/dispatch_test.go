package app

import (
	"context"
	"testing"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

func newClassroomWithStudents(t *testing.T, dataStore store.Store, n int) (domain.Classroom, []domain.User) {
	t.Helper()
	teacher := domain.User{
		ID:        util.NewID(),
		Username:  "mrslovelace",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := dataStore.CreateUser(teacher); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	classroom := domain.Classroom{
		ID:        util.NewID(),
		Name:      "Period 3",
		TeacherID: teacher.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := dataStore.CreateClassroom(classroom); err != nil {
		t.Fatalf("create classroom: %v", err)
	}
	users := make([]domain.User, 0, n)
	names := []string{"ada", "grace", "edsger", "barbara"}
	for i := 0; i < n; i++ {
		user := newStudent(t, dataStore, names[i])
		profile := domain.StudentProfile{
			ID:          util.NewID(),
			UserID:      user.ID,
			ClassroomID: classroom.ID,
			FirstName:   names[i],
			LastName:    "lovelace",
			CreatedAt:   time.Now().UTC(),
		}
		if err := dataStore.CreateStudentProfile(profile); err != nil {
			t.Fatalf("create profile: %v", err)
		}
		users = append(users, user)
	}
	return classroom, users
}

func TestDispatchScheduledFansOutToClassroom(t *testing.T) {
	a, dataStore := newTestApp(t)
	classroom, students := newClassroomWithStudents(t, dataStore, 3)

	sm := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     "Field trip forms",
		Body:        "Bring them back by Friday.",
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := dataStore.CreateScheduledMessage(sm); err != nil {
		t.Fatalf("create scheduled: %v", err)
	}

	if err := a.DispatchScheduled(context.Background(), sm.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for _, student := range students {
		msgs, err := dataStore.MessagesBySubject(classroom.TeacherID, student.ID, sm.Subject)
		if err != nil {
			t.Fatalf("messages for %s: %v", student.Username, err)
		}
		if len(msgs) != 1 {
			t.Fatalf("student %s got %d messages", student.Username, len(msgs))
		}
		if msgs[0].Body != sm.Body {
			t.Fatalf("unexpected body %q", msgs[0].Body)
		}
		if msgs[0].SenderID != classroom.TeacherID {
			t.Fatalf("announcement sent from %s, want classroom teacher", msgs[0].SenderID)
		}
	}
	got, _ := dataStore.GetScheduledMessage(sm.ID)
	if !got.Sent || got.SentAt == nil {
		t.Fatalf("scheduled message not marked sent: %+v", got)
	}
}

func TestDispatchScheduledIsIdempotent(t *testing.T) {
	a, dataStore := newTestApp(t)
	classroom, students := newClassroomWithStudents(t, dataStore, 2)
	sm := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     "Quiz tomorrow",
		Body:        "Review Day 3.",
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := dataStore.CreateScheduledMessage(sm); err != nil {
		t.Fatalf("create scheduled: %v", err)
	}
	ctx := context.Background()
	if err := a.DispatchScheduled(ctx, sm.ID); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := a.DispatchScheduled(ctx, sm.ID); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	for _, student := range students {
		inbox, _ := dataStore.ListInbox(student.ID)
		if len(inbox) != 1 {
			t.Fatalf("student %s has %d messages after double dispatch", student.Username, len(inbox))
		}
	}
}

func TestDispatchDueSkipsFutureAndSent(t *testing.T) {
	a, dataStore := newTestApp(t)
	classroom, _ := newClassroomWithStudents(t, dataStore, 1)
	now := time.Now().UTC()

	due := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     "Due now",
		ScheduledAt: now.Add(-time.Hour),
	}
	future := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     "Not yet",
		ScheduledAt: now.Add(time.Hour),
	}
	sentAt := now.Add(-2 * time.Hour)
	alreadySent := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     "Old news",
		ScheduledAt: now.Add(-3 * time.Hour),
		Sent:        true,
		SentAt:      &sentAt,
	}
	for _, sm := range []domain.ScheduledMessage{due, future, alreadySent} {
		if err := dataStore.CreateScheduledMessage(sm); err != nil {
			t.Fatalf("create scheduled: %v", err)
		}
	}

	dispatched, err := a.DispatchDue(context.Background())
	if err != nil {
		t.Fatalf("dispatch due: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("want 1 dispatch, got %d", dispatched)
	}
	got, _ := dataStore.GetScheduledMessage(future.ID)
	if got.Sent {
		t.Fatalf("future message should stay unsent")
	}
}

func TestDispatchScheduledSubjectMatchingTemplate(t *testing.T) {
	a, dataStore := newTestApp(t)
	classroom, students := newClassroomWithStudents(t, dataStore, 1)
	student := students[0]

	if _, err := a.SeedInboxForUser(context.Background(), student.ID); err != nil {
		t.Fatalf("seed inbox: %v", err)
	}

	// A teacher announcement reusing a seeded subject must still land:
	// the seeded copy belongs to the system sender, not the teacher.
	sm := domain.ScheduledMessage{
		ID:          util.NewID(),
		ClassroomID: classroom.ID,
		Subject:     InboxTemplates[0].Subject,
		Body:        "Read this one again before Monday.",
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := dataStore.CreateScheduledMessage(sm); err != nil {
		t.Fatalf("create scheduled: %v", err)
	}
	if err := a.DispatchScheduled(context.Background(), sm.ID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	msgs, err := dataStore.MessagesBySubject(classroom.TeacherID, student.ID, sm.Subject)
	if err != nil {
		t.Fatalf("teacher messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("announcement with seeded subject not delivered, got %d", len(msgs))
	}
	seeded, err := dataStore.MessagesBySubject(a.sender.ID, student.ID, sm.Subject)
	if err != nil {
		t.Fatalf("seeded messages: %v", err)
	}
	if len(seeded) != 1 {
		t.Fatalf("seeded copy disturbed, got %d", len(seeded))
	}
}

func TestDispatchScheduledMissingTarget(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.DispatchScheduled(context.Background(), "missing"); err != nil {
		t.Fatalf("missing scheduled message should be dropped, got %v", err)
	}
}
