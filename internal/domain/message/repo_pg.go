package message

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type messageRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const messageCols = "id, name, email, subject, message, is_read, created_at"

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO messages (name, email, subject, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at`,
		m.Name, m.Email, m.Subject, m.Body,
	).Scan(&m.ID, &m.IsRead, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("message create: %w", err)
	}
	return nil
}

func (r *messageRepoPG) GetByID(ctx context.Context, id int64) (*Message, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("message get by id: %w", err)
	}
	return m, nil
}

func (r *messageRepoPG) List(ctx context.Context) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+messageCols+` FROM messages ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("message list: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message list: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("message mark read: %w", err)
	}
	return nil
}

func (r *messageRepoPG) MarkAllRead(ctx context.Context) (int64, error) {
	cmd, err := r.conn(ctx).Exec(ctx,
		`UPDATE messages SET is_read = TRUE WHERE is_read = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("message mark all read: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("message delete: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *messageRepoPG) CountUnread(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE is_read = FALSE`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("message count unread: %w", err)
	}
	return n, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Body, &m.IsRead, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
