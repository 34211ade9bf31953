package app

import (
	"context"
	"testing"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

func newStudent(t *testing.T, dataStore store.Store, username string) domain.User {
	t.Helper()
	user := domain.User{
		ID:        util.NewID(),
		Username:  username,
		IsStudent: true,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := dataStore.CreateUser(user); err != nil {
		t.Fatalf("create student: %v", err)
	}
	return user
}

func TestSeedInboxForUserCreatesAllTemplates(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")

	result, err := a.SeedInboxForUser(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result.Created != len(InboxTemplates) || result.Updated != 0 || result.DeletedDupes != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	inbox, err := dataStore.ListInbox(student.ID)
	if err != nil {
		t.Fatalf("list inbox: %v", err)
	}
	if len(inbox) != len(InboxTemplates) {
		t.Fatalf("want %d messages, got %d", len(InboxTemplates), len(inbox))
	}
	for _, msg := range inbox {
		if msg.SenderID != a.sender.ID {
			t.Fatalf("message %q not from system sender", msg.Subject)
		}
		if msg.IsRead {
			t.Fatalf("seeded message %q should start unread", msg.Subject)
		}
	}
}

func TestSeedInboxForUserIsIdempotent(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")
	ctx := context.Background()

	if _, err := a.SeedInboxForUser(ctx, student.ID); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	first, _ := dataStore.ListInbox(student.ID)

	result, err := a.SeedInboxForUser(ctx, student.ID)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if result.Created != 0 || result.Updated != 0 || result.DeletedDupes != 0 {
		t.Fatalf("second run should be a no-op, got %+v", result)
	}
	second, _ := dataStore.ListInbox(student.ID)
	if len(first) != len(second) {
		t.Fatalf("message count changed: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("message %d changed between runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestSeedInboxUpdatesBodyInPlace(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")
	ctx := context.Background()

	// An older message for the first template, already read, with a
	// stale body.
	stale := domain.Message{
		ID:          util.NewID(),
		SenderID:    a.sender.ID,
		RecipientID: student.ID,
		Subject:     InboxTemplates[0].Subject,
		Body:        "an outdated greeting",
		Timestamp:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		IsRead:      true,
	}
	if err := dataStore.CreateMessage(stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}

	result, err := a.SeedInboxForUser(ctx, student.ID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("want 1 update, got %+v", result)
	}
	if result.Created != len(InboxTemplates)-1 {
		t.Fatalf("want %d creates, got %+v", len(InboxTemplates)-1, result)
	}

	msgs, _ := dataStore.MessagesBySubject(a.sender.ID, student.ID, stale.Subject)
	if len(msgs) != 1 {
		t.Fatalf("want 1 message for subject, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Body != InboxTemplates[0].Body {
		t.Fatalf("body not updated: %q", got.Body)
	}
	if !got.IsRead {
		t.Fatalf("update must not reset is_read")
	}
	if !got.Timestamp.Equal(stale.Timestamp) {
		t.Fatalf("update must not touch timestamp: %v", got.Timestamp)
	}
}

// dupeStore injects historical duplicate rows that the uniqueness index
// would reject today, simulating legacy data.
type dupeStore struct {
	store.Store
	extra []domain.Message
}

func (d *dupeStore) Transact(fn func(store.Store) error) error {
	return fn(d)
}

func (d *dupeStore) MessagesBySubject(senderID, recipientID, subject string) ([]domain.Message, error) {
	msgs, err := d.Store.MessagesBySubject(senderID, recipientID, subject)
	if err != nil {
		return nil, err
	}
	for _, m := range d.extra {
		if m.SenderID == senderID && m.RecipientID == recipientID && m.Subject == subject {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (d *dupeStore) DeleteMessages(ids []string) error {
	remaining := d.extra[:0]
	var passthrough []string
	for _, id := range ids {
		injected := false
		for _, m := range d.extra {
			if m.ID == id {
				injected = true
				break
			}
		}
		if !injected {
			passthrough = append(passthrough, id)
		}
	}
	for _, m := range d.extra {
		deleted := false
		for _, id := range ids {
			if m.ID == id {
				deleted = true
				break
			}
		}
		if !deleted {
			remaining = append(remaining, m)
		}
	}
	d.extra = remaining
	return d.Store.DeleteMessages(passthrough)
}

func TestSeedInboxRepairsDuplicates(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	oldest := domain.Message{
		ID:          util.NewID(),
		SenderID:    a.sender.ID,
		RecipientID: student.ID,
		Subject:     InboxTemplates[0].Subject,
		Body:        "old body",
		Timestamp:   base,
	}
	if err := dataStore.CreateMessage(oldest); err != nil {
		t.Fatalf("create oldest: %v", err)
	}
	wrapped := &dupeStore{Store: dataStore}
	for i := 1; i <= 2; i++ {
		wrapped.extra = append(wrapped.extra, domain.Message{
			ID:          util.NewID(),
			SenderID:    a.sender.ID,
			RecipientID: student.ID,
			Subject:     InboxTemplates[0].Subject,
			Body:        "newer duplicate",
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	a.store = wrapped

	result, err := a.SeedInboxForUser(ctx, student.ID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result.DeletedDupes != 2 {
		t.Fatalf("want 2 duplicates removed, got %+v", result)
	}
	if result.Updated != 1 {
		t.Fatalf("kept row should have been updated, got %+v", result)
	}
	msgs, _ := wrapped.MessagesBySubject(a.sender.ID, student.ID, InboxTemplates[0].Subject)
	if len(msgs) != 1 {
		t.Fatalf("want 1 surviving message, got %d", len(msgs))
	}
	if msgs[0].ID != oldest.ID {
		t.Fatalf("survivor should be the oldest row")
	}
	if msgs[0].Body != InboxTemplates[0].Body {
		t.Fatalf("survivor body not refreshed: %q", msgs[0].Body)
	}
}

// racingStore fails the first create with ErrDuplicate to simulate a
// concurrent seeder winning the insert race.
type racingStore struct {
	store.Store
	failures int
}

func (r *racingStore) Transact(fn func(store.Store) error) error {
	return fn(r)
}

func (r *racingStore) CreateMessage(msg domain.Message) error {
	if r.failures > 0 {
		r.failures--
		return store.ErrDuplicate
	}
	return r.Store.CreateMessage(msg)
}

func TestSeedInboxRetriesOnDuplicateRace(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")
	a.store = &racingStore{Store: dataStore, failures: 1}

	result, err := a.SeedInboxForUser(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("seed should retry through the race: %v", err)
	}
	if result.Created != len(InboxTemplates) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSeedInboxGivesUpAfterBoundedRetries(t *testing.T) {
	a, dataStore := newTestApp(t)
	student := newStudent(t, dataStore, "ada")
	a.store = &racingStore{Store: dataStore, failures: seedMaxAttempts}

	if _, err := a.SeedInboxForUser(context.Background(), student.ID); err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
}

func TestSeedInboxSkipsInactiveAndNonStudents(t *testing.T) {
	a, dataStore := newTestApp(t)
	teacher := domain.User{ID: util.NewID(), Username: "teach", IsTeacher: true, IsActive: true}
	if err := dataStore.CreateUser(teacher); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	result, err := a.SeedInboxForUser(context.Background(), teacher.ID)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result != (SeedResult{}) {
		t.Fatalf("teacher inbox must not be seeded, got %+v", result)
	}
	inbox, _ := dataStore.ListInbox(teacher.ID)
	if len(inbox) != 0 {
		t.Fatalf("teacher received %d messages", len(inbox))
	}
}

func TestSeedInboxAllAggregatesCounts(t *testing.T) {
	a, dataStore := newTestApp(t)
	for _, name := range []string{"ada", "grace", "edsger"} {
		newStudent(t, dataStore, name)
	}
	// One inactive student who must be skipped.
	inactive := domain.User{ID: util.NewID(), Username: "gone", IsStudent: true, IsActive: false}
	if err := dataStore.CreateUser(inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	result, err := a.SeedInboxAll(context.Background())
	if err != nil {
		t.Fatalf("bulk seed: %v", err)
	}
	want := 3 * len(InboxTemplates)
	if result.Created != want {
		t.Fatalf("want %d creates, got %+v", want, result)
	}
	inbox, _ := dataStore.ListInbox(inactive.ID)
	if len(inbox) != 0 {
		t.Fatalf("inactive student received %d messages", len(inbox))
	}
}
