package participants

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository answers membership questions against the
// conversation_participants table. It is the only boundary the real-time
// layer has with the relational store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new participants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IsActiveParticipant reports whether the user currently belongs to the
// conversation (joined and not departed). Queried fresh on every
// conversation join; results are never cached.
func (r *Repository) IsActiveParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	const q = `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL`

	rows, err := r.pool.Query(ctx, q, conversationID, userID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	return rows.Next(), rows.Err()
}

// MarkRead records the user's last-read timestamp for the conversation.
// Idempotent and last-writer-wins; overwriting with a later timestamp is
// always correct, so no transaction is taken.
func (r *Repository) MarkRead(ctx context.Context, conversationID, userID string, readAt time.Time) error {
	const q = `
		UPDATE conversation_participants
		SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2`

	_, err := r.pool.Exec(ctx, q, conversationID, userID, readAt)
	return err
}
