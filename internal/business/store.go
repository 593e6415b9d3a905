package business

import "context"

// Store persists business data.
type Store interface {
	Create(ctx context.Context, b *Business) error
	Get(ctx context.Context, id string) (*Business, error)
	GetBySlug(ctx context.Context, slug string) (*Business, error)
	GetByEmbedKey(ctx context.Context, key string) (*Business, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*Business, error)
	Update(ctx context.Context, b *Business) error
}
