package app

import (
	"errors"

	"scitrek/pkg/domain"
	"scitrek/pkg/store"
)

// ListInbox returns the authed user's messages, newest first.
func (a *App) ListInbox(user domain.User) ([]domain.Message, error) {
	return a.store.ListInbox(user.ID)
}

// UnreadCount returns how many of the user's messages are unread.
func (a *App) UnreadCount(user domain.User) (int, error) {
	return a.store.UnreadCount(user.ID)
}

// MarkMessageRead flags one message as read. The update is scoped to
// the authed recipient so a user can never flip another inbox's flags.
func (a *App) MarkMessageRead(user domain.User, messageID string) error {
	if err := a.store.MarkMessageRead(messageID, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
