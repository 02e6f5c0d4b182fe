/**
 * @description
 * This file implements the data access layer root for the registration
 * service. The repository is split by concern across files in this package:
 * member records (plans/profiles/subscriptions/commissions), the fallback
 * store (pending_subscriptions / pending_completions) and the flow
 * observability tables.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Repository handles database operations for the registration flow.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}
