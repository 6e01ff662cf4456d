package repository

import (
	"context"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
)

type UserRepository interface {
	// Upsert records the verified identity so candidates can reference it.
	Upsert(ctx context.Context, id domain.Identity) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
