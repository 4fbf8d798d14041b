package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// UserStore is the remote user-record backend. Records are handled as raw
// JSON fields so a read-modify-write keeps fields the cart does not own.
type UserStore interface {
	// FetchUser returns the full record for userID.
	FetchUser(ctx context.Context, userID string) (domain.UserRecord, error)

	// ReplaceUser overwrites the full record for userID.
	ReplaceUser(ctx context.Context, userID string, record domain.UserRecord) error

	// PatchUser overwrites only the given top-level fields.
	PatchUser(ctx context.Context, userID string, fields domain.UserRecord) error
}

// GuestStore persists the cart of an anonymous visitor.
type GuestStore interface {
	// Get returns the stored items; ok is false when nothing is stored.
	Get(ctx context.Context, key string) (items []domain.LineItem, ok bool, err error)

	// Set stores items under key, replacing any previous value.
	Set(ctx context.Context, key string, items []domain.LineItem) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Catalog lists the products offered by the storefront.
type Catalog interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}
