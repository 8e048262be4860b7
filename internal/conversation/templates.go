package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

// TemplateSource resolves the currently active prompt template body for a
// code. Template lifecycle is managed elsewhere; this core only reads.
type TemplateSource interface {
	ActiveTemplate(ctx context.Context, code string) (string, error)
}

// PostgresTemplates reads prompt templates from the prompt_templates table.
type PostgresTemplates struct {
	pool Querier
}

// NewPostgresTemplates creates a template source over Postgres.
func NewPostgresTemplates(pool Querier) *PostgresTemplates {
	if pool == nil {
		panic("conversation: pgx querier required")
	}
	return &PostgresTemplates{pool: pool}
}

// ActiveTemplate returns the body of the active template for code, or
// ErrTemplateNotFound when no active row exists.
func (t *PostgresTemplates) ActiveTemplate(ctx context.Context, code string) (string, error) {
	var body string
	err := t.pool.QueryRow(ctx, `
		SELECT body FROM prompt_templates
		WHERE code = $1 AND active
		ORDER BY created_at DESC
		LIMIT 1
	`, code).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: code %q", ErrTemplateNotFound, code)
	}
	if err != nil {
		return "", storeErr("read prompt template", err)
	}
	return body, nil
}

// CachedTemplates wraps a TemplateSource with a Redis read-through cache.
// Cache failures fall through to the underlying source so Redis outages
// never fail a turn; only a genuine miss in the source is an error.
type CachedTemplates struct {
	source TemplateSource
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedTemplates wraps source with a Redis cache using the given TTL.
func NewCachedTemplates(source TemplateSource, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedTemplates {
	if source == nil {
		panic("conversation: template source required")
	}
	if client == nil {
		panic("conversation: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedTemplates{
		source: source,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

// ActiveTemplate serves from Redis when possible, falling back to the source.
func (c *CachedTemplates) ActiveTemplate(ctx context.Context, code string) (string, error) {
	key := templateKey(code)

	body, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		return body, nil
	}
	if err != redis.Nil {
		c.logger.Warn("template cache read failed, falling back to store", "code", code, "error", err)
	}

	body, err = c.source.ActiveTemplate(ctx, code)
	if err != nil {
		return "", err
	}

	if setErr := c.redis.Set(ctx, key, body, c.ttl).Err(); setErr != nil {
		c.logger.Warn("template cache write failed", "code", code, "error", setErr)
	}
	return body, nil
}

func templateKey(code string) string {
	return fmt.Sprintf("prompt_template:%s", code)
}
