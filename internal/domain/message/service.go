package message

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Sentinel errors surfaced to users verbatim through flash messages.
var (
	ErrNotFound   = errors.New("Message not found")
	ErrBadContact = errors.New("Failed to send message. Please try again.")
)

type Service struct {
	messages Repository
}

func NewService(messages Repository) *Service {
	return &Service{messages: messages}
}

// ContactForm carries one contact-page submission.
type ContactForm struct {
	Name    string
	Email   string
	Subject string
	Body    string
}

// Submit records a contact message. Every field is required and the
// email must at least look like one.
func (s *Service) Submit(ctx context.Context, in ContactForm) (*Message, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Name == "" || in.Email == "" || in.Subject == "" || in.Body == "" {
		return nil, ErrBadContact
	}
	if at := strings.Index(in.Email, "@"); at <= 0 || at == len(in.Email)-1 {
		return nil, ErrBadContact
	}

	m := &Message{Name: in.Name, Email: in.Email, Subject: in.Subject, Body: in.Body}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Inbox returns every message newest first plus the unread count.
func (s *Service) Inbox(ctx context.Context) ([]*Message, int, error) {
	list, err := s.messages.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	unread, err := s.messages.CountUnread(ctx)
	if err != nil {
		return nil, 0, err
	}
	return list, unread, nil
}

// View loads one message and marks it read.
func (s *Service) View(ctx context.Context, id int64) (*Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !m.IsRead {
		if err := s.messages.MarkRead(ctx, id); err != nil {
			return nil, err
		}
		m.IsRead = true
	}
	return m, nil
}

// MarkRead flips one message; a missing id is a no-op.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	return s.messages.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) (int64, error) {
	return s.messages.MarkAllRead(ctx)
}

// Delete removes a message and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	return s.messages.Delete(ctx, id)
}
