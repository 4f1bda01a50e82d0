package account

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/db"
)

type accountRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const tokenCols = "id, user_id, token, expires_at, used, created_at"

func (r *accountRepoPG) CreateToken(ctx context.Context, t *ResetToken) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO password_reset_tokens (user_id, token, expires_at, used)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.UserID, t.Token, t.ExpiresAt, t.Used,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("reset token create: %w", err)
	}
	return nil
}

func (r *accountRepoPG) GetValidToken(ctx context.Context, token string) (*ResetToken, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+tokenCols+`
		FROM password_reset_tokens
		WHERE token = $1 AND used = 0 AND expires_at > NOW()`,
		token,
	)
	t, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("reset token get: %w", err)
	}
	return t, nil
}

func (r *accountRepoPG) DeleteUnusedTokens(ctx context.Context, userID int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE user_id = $1 AND used = 0`, userID)
	if err != nil {
		return fmt.Errorf("reset tokens delete unused: %w", err)
	}
	return nil
}

func (r *accountRepoPG) MarkUsed(ctx context.Context, id int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE password_reset_tokens SET used = 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset token mark used: %w", err)
	}
	return nil
}

func (r *accountRepoPG) PurgeTokens(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE used = 1 OR expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("reset tokens purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *accountRepoPG) PurgeDeactivated(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM users
		WHERE role <> 'admin'
		  AND is_active = FALSE
		  AND deactivated_at IS NOT NULL
		  AND deactivated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivated accounts purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*ResetToken, error) {
	var t ResetToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
