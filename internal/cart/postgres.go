package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDuplicateCartID = errors.New("cart with this id already exists")

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, c *Cart) error {
	items, policies, metadata, err := marshalCartDocs(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO carts (id, owner_id, currency, items, subtotal, tax, discount, total, policies, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		c.ID, c.OwnerID, c.Currency, items, c.Subtotal, c.Tax, c.Discount, c.Total, policies, metadata, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateCartID
		}
		return fmt.Errorf("repository: failed to insert cart: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	row := r.pool.QueryRow(ctx, selectCartQuery+` WHERE id = $1`, id)
	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart %s: %w", id, err)
	}
	return c, nil
}

// Update runs fn inside a transaction holding a row lock, so
// concurrent mutations of the same cart serialize instead of losing
// updates.
func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, selectCartQuery+` WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock cart %s: %w", id, err)
	}

	if err := fn(c); err != nil {
		return nil, err
	}

	items, policies, metadata, err := marshalCartDocs(c)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE carts
		SET owner_id = $2, currency = $3, items = $4, subtotal = $5, tax = $6, discount = $7, total = $8, policies = $9, metadata = $10, updated_at = $11
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		c.ID, c.OwnerID, c.Currency, items, c.Subtotal, c.Tax, c.Discount, c.Total, policies, metadata, c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("repository: failed to update cart %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit cart update: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *postgresRepository) Consume(ctx context.Context, id uuid.UUID) (*Cart, error) {
	query := `
		DELETE FROM carts
		WHERE id = $1
		RETURNING id, owner_id, currency, items, subtotal, tax, discount, total, policies, metadata, created_at, updated_at
	`
	row := r.pool.QueryRow(ctx, query, id)
	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to consume cart %s: %w", id, err)
	}
	return c, nil
}

const selectCartQuery = `
	SELECT id, owner_id, currency, items, subtotal, tax, discount, total, policies, metadata, created_at, updated_at
	FROM carts
`

func scanCart(row pgx.Row) (*Cart, error) {
	var c Cart
	var items, policies, metadata []byte

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Currency, &items, &c.Subtotal, &c.Tax, &c.Discount, &c.Total, &policies, &metadata, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode cart items: %w", err)
	}
	if len(policies) > 0 {
		if err := json.Unmarshal(policies, &c.Policies); err != nil {
			return nil, fmt.Errorf("repository: failed to decode cart policies: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("repository: failed to decode cart metadata: %w", err)
		}
	}
	return &c, nil
}

func marshalCartDocs(c *Cart) (items, policies, metadata []byte, err error) {
	if c.Items == nil {
		c.Items = []Item{}
	}
	items, err = json.Marshal(c.Items)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode cart items: %w", err)
	}
	policies, err = json.Marshal(c.Policies)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode cart policies: %w", err)
	}
	metadata, err = json.Marshal(c.Metadata)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("repository: failed to encode cart metadata: %w", err)
	}
	return items, policies, metadata, nil
}
