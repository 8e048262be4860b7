package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx executed inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the store needs. *pgxpool.Pool satisfies it,
// and so does pgxmock in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversation identity, transcripts, and per-conversation
// context in Postgres.
type Store struct {
	pool PgxPool
}

// NewStore creates a conversation store backed by the given pool.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &Store{pool: pool}
}

// ResolveOrCreate returns the id of the conversation identified by
// (channel, externalID), creating it on first contact. Concurrent first
// messages for the same pair are resolved by the unique index on that pair:
// the losing insert re-selects the winner's row.
func (s *Store) ResolveOrCreate(ctx context.Context, channel Channel, externalID string) (int64, error) {
	id, err := s.lookup(ctx, channel, externalID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, storeErr("resolve conversation", err)
	}

	now := time.Now().UTC()
	err = s.pool.QueryRow(ctx, `
		INSERT INTO conversations (channel, external_identifier, started_at, last_message_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id
	`, channel, externalID, now).Scan(&id)
	if err == nil {
		return id, nil
	}

	if isUniqueViolation(err) {
		// Identity race: another request inserted the pair first.
		id, err = s.lookup(ctx, channel, externalID)
		if err != nil {
			return 0, storeErr("re-select after identity race", err)
		}
		return id, nil
	}

	return 0, storeErr("create conversation", err)
}

func (s *Store) lookup(ctx context.Context, channel Channel, externalID string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE channel = $1 AND external_identifier = $2
	`, channel, externalID).Scan(&id)
	return id, err
}

// AppendMessage inserts a transcript entry and bumps the conversation's
// last_message_at in the same transaction.
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, sender Sender, text string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, storeErr("begin append", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var messageID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender, body, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, conversationID, sender, text, now).Scan(&messageID)
	if err != nil {
		return 0, storeErr("insert message", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations SET last_message_at = $1 WHERE id = $2
	`, now, conversationID); err != nil {
		return 0, storeErr("update last_message_at", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, storeErr("commit append", err)
	}
	return messageID, nil
}

// GetContext returns the context row for a conversation, or nil when none
// has been written yet.
func (s *Store) GetContext(ctx context.Context, conversationID int64) (*Context, error) {
	var (
		c          Context
		intent     *string
		listingID  *int64
		promptCode *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT conversation_id, current_step, intent, related_listing_id, active_prompt_code, updated_at
		FROM conversation_context
		WHERE conversation_id = $1
	`, conversationID).Scan(&c.ConversationID, &c.CurrentStep, &intent, &listingID, &promptCode, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get context", err)
	}

	c.Intent = intent
	c.RelatedListingID = listingID
	if promptCode != nil {
		c.ActivePromptCode = *promptCode
	}
	return &c, nil
}

// UpsertContext inserts or updates the context row for a conversation. The
// merge is explicit: stored values are read under lock and only fields
// present in the update overwrite them, so an unset optional field never
// erases earlier state. Concurrent first writes for the same conversation
// (duplicate webhook delivery) are resolved last-write-wins: the losing
// insert becomes a merge against the winner's row.
func (s *Store) UpsertContext(ctx context.Context, conversationID int64, update ContextUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	stored, err := lockContext(ctx, tx, conversationID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return storeErr("read context for upsert", err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		tag, insErr := tx.Exec(ctx, `
			INSERT INTO conversation_context (conversation_id, current_step, intent, related_listing_id, active_prompt_code, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (conversation_id) DO NOTHING
		`, conversationID, update.CurrentStep, update.Intent, update.RelatedListingID, update.PromptCode, now)
		if insErr != nil {
			return storeErr("insert context", insErr)
		}
		if tag.RowsAffected() > 0 {
			if err := tx.Commit(ctx); err != nil {
				return storeErr("commit upsert", err)
			}
			return nil
		}
		// Context race: a concurrent turn inserted the row between the
		// select and the insert. Lock it and merge instead; blocks until
		// the winner commits.
		stored, err = lockContext(ctx, tx, conversationID)
		if err != nil {
			return storeErr("re-select after context race", err)
		}
	}

	intent := mergeString(update.Intent, stored.intent)
	listing := mergeInt64(update.RelatedListingID, stored.listing)
	code := mergeString(update.PromptCode, stored.code)
	if _, err := tx.Exec(ctx, `
		UPDATE conversation_context
		SET current_step = $1, intent = $2, related_listing_id = $3, active_prompt_code = $4, updated_at = $5
		WHERE conversation_id = $6
	`, update.CurrentStep, intent, listing, code, now, conversationID); err != nil {
		return storeErr("update context", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

type storedContext struct {
	intent  *string
	listing *int64
	code    *string
}

func lockContext(ctx context.Context, tx pgx.Tx, conversationID int64) (storedContext, error) {
	var sc storedContext
	err := tx.QueryRow(ctx, `
		SELECT intent, related_listing_id, active_prompt_code
		FROM conversation_context
		WHERE conversation_id = $1
		FOR UPDATE
	`, conversationID).Scan(&sc.intent, &sc.listing, &sc.code)
	return sc, err
}

func mergeString(supplied, stored *string) *string {
	if supplied != nil {
		return supplied
	}
	return stored
}

func mergeInt64(supplied, stored *int64) *int64 {
	if supplied != nil {
		return supplied
	}
	return stored
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
