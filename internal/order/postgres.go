package order

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

var ErrDuplicateOrderID = errors.New("order with this id already exists")

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	items, actions, returns, metadata, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (id, owner_id, status, items, currency, total, fulfillment_type, delivery_address, rating, metadata, actions, returns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		o.ID, o.OwnerID, string(o.Status), items, o.Currency, o.Total, o.FulfillmentType, o.DeliveryAddress, o.Rating, metadata, actions, returns, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateOrderID
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := r.pool.QueryRow(ctx, selectOrderQuery+` WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}
	return o, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	query := selectOrderQuery + ` WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for owner %s: %w", ownerID, err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for owner %s: %w", ownerID, err)
	}
	return orders, nil
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, fn func(*Order) error) (*Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, selectOrderQuery+` WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock order %s: %w", id, err)
	}

	if err := fn(o); err != nil {
		return nil, err
	}

	items, actions, returns, metadata, err := marshalOrderDocs(o)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE orders
		SET status = $2, items = $3, total = $4, fulfillment_type = $5, delivery_address = $6, rating = $7, metadata = $8, actions = $9, returns = $10, updated_at = $11
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query,
		o.ID, string(o.Status), items, o.Total, o.FulfillmentType, o.DeliveryAddress, o.Rating, metadata, actions, returns, o.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("repository: failed to update order %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit order update: %w", err)
	}
	return o, nil
}

const selectOrderQuery = `
	SELECT id, owner_id, status, items, currency, total, fulfillment_type, delivery_address, rating, metadata, actions, returns, created_at, updated_at
	FROM orders
`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	var items, metadata, actions, returns []byte

	err := row.Scan(
		&o.ID, &o.OwnerID, &status, &items, &o.Currency, &o.Total, &o.FulfillmentType, &o.DeliveryAddress, &o.Rating, &metadata, &actions, &returns, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(actions, &o.Actions); err != nil {
		return nil, fmt.Errorf("repository: failed to decode order actions: %w", err)
	}
	if err := json.Unmarshal(returns, &o.Returns); err != nil {
		return nil, fmt.Errorf("repository: failed to decode order returns: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return nil, fmt.Errorf("repository: failed to decode order metadata: %w", err)
		}
	}
	return &o, nil
}

func marshalOrderDocs(o *Order) (items, actions, returns, metadata []byte, err error) {
	if o.Items == nil {
		o.Items = []Item{}
	}
	if o.Actions == nil {
		o.Actions = []Action{}
	}
	if o.Returns == nil {
		o.Returns = []Return{}
	}

	items, err = json.Marshal(o.Items)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: failed to encode order items: %w", err)
	}
	actions, err = json.Marshal(o.Actions)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: failed to encode order actions: %w", err)
	}
	returns, err = json.Marshal(o.Returns)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: failed to encode order returns: %w", err)
	}
	metadata, err = json.Marshal(o.Metadata)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("repository: failed to encode order metadata: %w", err)
	}
	return items, actions, returns, metadata, nil
}
