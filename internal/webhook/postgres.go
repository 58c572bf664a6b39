package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

func (r *postgresRepository) Create(ctx context.Context, w *Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return fmt.Errorf("repository: failed to encode webhook events: %w", err)
	}
	metadata, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("repository: failed to encode webhook metadata: %w", err)
	}

	query := `INSERT INTO webhooks (id, url, events, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.pool.Exec(ctx, query, w.ID, w.URL, events, metadata, w.CreatedAt, w.UpdatedAt); err != nil {
		return fmt.Errorf("repository: failed to insert webhook: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, url, events, metadata, created_at, updated_at FROM webhooks WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("repository: failed to select webhook %s: %w", id, err)
	}
	return w, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Webhook, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, url, events, metadata, created_at, updated_at FROM webhooks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query webhooks: %w", err)
	}
	defer rows.Close()

	out := make([]Webhook, 0)
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan webhook: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating webhooks: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete webhook %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

func (r *postgresRepository) CreateDelivery(ctx context.Context, d *Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("repository: failed to encode delivery payload: %w", err)
	}

	query := `INSERT INTO webhook_deliveries (id, webhook_id, event, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.pool.Exec(ctx, query, d.ID, d.WebhookID, d.Event, payload, d.CreatedAt); err != nil {
		return fmt.Errorf("repository: failed to insert webhook delivery: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]Delivery, error) {
	query := `
		SELECT id, webhook_id, event, payload, created_at
		FROM webhook_deliveries
		WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR webhook_id = $1)
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, webhookID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query webhook deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]Delivery, 0)
	for rows.Next() {
		var d Delivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.Event, &payload, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan webhook delivery: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &d.Payload); err != nil {
				return nil, fmt.Errorf("repository: failed to decode delivery payload: %w", err)
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating webhook deliveries: %w", err)
	}
	return out, nil
}

func scanWebhook(row pgx.Row) (*Webhook, error) {
	var w Webhook
	var events, metadata []byte

	if err := row.Scan(&w.ID, &w.URL, &events, &metadata, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &w.Events); err != nil {
		return nil, fmt.Errorf("repository: failed to decode webhook events: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &w.Metadata); err != nil {
			return nil, fmt.Errorf("repository: failed to decode webhook metadata: %w", err)
		}
	}
	return &w, nil
}
