package message

import "context"

type Repository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// List returns every message newest first.
	List(ctx context.Context) ([]*Message, error)
	MarkRead(ctx context.Context, id int64) error
	// MarkAllRead flips every unread message and reports how many.
	MarkAllRead(ctx context.Context) (int64, error)
	// Delete removes the message and reports whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)
	CountUnread(ctx context.Context) (int, error)
}
