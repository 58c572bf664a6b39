package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) CreateStore(ctx context.Context, s *Store) error {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate store id: %w", err)
		}
		s.ID = id
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("repository: failed to encode store metadata: %w", err)
	}

	query := `INSERT INTO stores (id, name, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.pool.Exec(ctx, query, s.ID, s.Name, metadata, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("repository: failed to insert store: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetStoreByID(ctx context.Context, id uuid.UUID) (*Store, error) {
	var s Store
	var metadata []byte

	query := `SELECT id, name, metadata, created_at, updated_at FROM stores WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &metadata, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("repository: failed to select store %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("repository: failed to decode store metadata: %w", err)
		}
	}
	return &s, nil
}

func (r *postgresRepository) ListStores(ctx context.Context) ([]Store, error) {
	query := `SELECT id, name, metadata, created_at, updated_at FROM stores ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stores: %w", err)
	}
	defer rows.Close()

	out := make([]Store, 0)
	for rows.Next() {
		var s Store
		var metadata []byte
		if err := rows.Scan(&s.ID, &s.Name, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan store: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
				return nil, fmt.Errorf("repository: failed to decode store metadata: %w", err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating stores: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) CreateItem(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate item id: %w", err)
		}
		item.ID = id
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("repository: failed to encode item metadata: %w", err)
	}

	query := `
		INSERT INTO catalog_items (id, store_id, name, description, price, currency, available, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.pool.Exec(ctx, query,
		item.ID, item.StoreID, item.Name, item.Description, item.Price, item.Currency, item.Available, metadata, item.CreatedAt, item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("repository: failed to insert catalog item: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := r.pool.QueryRow(ctx, selectItemQuery+` WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select catalog item %s: %w", id, err)
	}
	return item, nil
}

func (r *postgresRepository) ListItems(ctx context.Context, storeID uuid.UUID) ([]Item, error) {
	query := selectItemQuery + ` WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR store_id = $1) ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query catalog items: %w", err)
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan catalog item: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating catalog items: %w", err)
	}
	return out, nil
}

const selectItemQuery = `
	SELECT id, store_id, name, description, price, currency, available, metadata, created_at, updated_at
	FROM catalog_items
`

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	var metadata []byte

	err := row.Scan(
		&item.ID, &item.StoreID, &item.Name, &item.Description, &item.Price, &item.Currency, &item.Available, &metadata, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("repository: failed to decode item metadata: %w", err)
		}
	}
	return &item, nil
}
