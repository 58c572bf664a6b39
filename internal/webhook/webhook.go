// Package webhook keeps the webhook registrations and records
// deliveries for lifecycle events. Actual delivery transport is an
// external concern.
package webhook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/apperr"
)

var ErrWebhookNotFound = errors.New("webhook not found")

type Webhook struct {
	ID        uuid.UUID      `json:"id"`
	URL       string         `json:"url"`
	Events    []string       `json:"events"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Delivery is one recorded lifecycle event for one webhook, waiting
// for the external transport to pick it up.
type Delivery struct {
	ID        uuid.UUID `json:"id"`
	WebhookID uuid.UUID `json:"webhook_id"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, w *Webhook) error
	GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CreateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]Delivery, error)
}

type memoryRepository struct {
	mu         sync.Mutex
	webhooks   map[uuid.UUID]*Webhook
	deliveries []Delivery
}

func NewMemoryRepository() Repository {
	return &memoryRepository{webhooks: make(map[uuid.UUID]*Webhook)}
}

func (r *memoryRepository) Create(ctx context.Context, w *Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *w
	copied.Events = append([]string(nil), w.Events...)
	r.webhooks[w.ID] = &copied
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.webhooks[id]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	copied := *w
	return &copied, nil
}

func (r *memoryRepository) List(ctx context.Context) ([]Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Webhook, 0, len(r.webhooks))
	for _, w := range r.webhooks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.webhooks[id]; !ok {
		return ErrWebhookNotFound
	}
	delete(r.webhooks, id)
	return nil
}

func (r *memoryRepository) CreateDelivery(ctx context.Context, d *Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deliveries = append(r.deliveries, *d)
	return nil
}

func (r *memoryRepository) ListDeliveries(ctx context.Context, webhookID uuid.UUID) ([]Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Delivery, 0)
	for _, d := range r.deliveries {
		if webhookID != uuid.Nil && d.WebhookID != webhookID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type RegisterInput struct {
	URL      string         `json:"url"`
	Events   []string       `json:"events"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Service interface {
	Register(ctx context.Context, input RegisterInput) (*Webhook, error)
	Get(ctx context.Context, id uuid.UUID) (*Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	Unregister(ctx context.Context, id uuid.UUID) error
	// Notify records one delivery per registered webhook subscribed to
	// the event. Failures are logged, never surfaced: a webhook store
	// hiccup must not fail the order mutation that triggered it.
	Notify(ctx context.Context, event string, payload any)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*Webhook, error) {
	var violations []apperr.FieldViolation
	if input.URL == "" {
		violations = append(violations, apperr.FieldViolation{Field: "url", Reason: "url is required"})
	}
	if len(input.Events) == 0 {
		violations = append(violations, apperr.FieldViolation{Field: "events", Reason: "at least one event is required"})
	}
	if len(violations) > 0 {
		return nil, apperr.Validation("invalid webhook", violations...)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, apperr.Internal("failed to generate webhook id", err)
	}

	now := time.Now().UTC()
	w := &Webhook{
		ID:        id,
		URL:       input.URL,
		Events:    input.Events,
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, apperr.Internal("failed to register webhook", err)
	}

	log.Info().Stringer("webhook_id", id).Str("url", input.URL).Msg("service: webhook registered")
	return w, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			return nil, apperr.NotFound("webhook not found")
		}
		return nil, apperr.Internal("webhook store failure", err)
	}
	return w, nil
}

func (s *service) List(ctx context.Context) ([]Webhook, error) {
	webhooks, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal("webhook store failure", err)
	}
	return webhooks, nil
}

func (s *service) Unregister(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			return apperr.NotFound("webhook not found")
		}
		return apperr.Internal("webhook store failure", err)
	}
	return nil
}

func (s *service) Notify(ctx context.Context, event string, payload any) {
	webhooks, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("service: failed to list webhooks for notification")
		return
	}

	for _, w := range webhooks {
		if !subscribed(w.Events, event) {
			continue
		}
		id, genErr := uuid.NewV4()
		if genErr != nil {
			continue
		}
		d := &Delivery{
			ID:        id,
			WebhookID: w.ID,
			Event:     event,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateDelivery(ctx, d); err != nil {
			log.Error().Err(err).Stringer("webhook_id", w.ID).Str("event", event).Msg("service: failed to enqueue webhook delivery")
		}
	}
}

func subscribed(events []string, event string) bool {
	for _, e := range events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
