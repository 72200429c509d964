package repository

import (
	"context"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
)

// DeadLetterRepository keeps queued messages that exhausted their retries
type DeadLetterRepository interface {
	// Put records a dead letter
	Put(ctx context.Context, letter *entity.DeadLetter) error

	// Take removes and returns the dead letter of a client message id.
	// It returns entity.ErrNotFound when there is none.
	Take(ctx context.Context, clientID string) (*entity.DeadLetter, error)

	// List returns every dead letter, oldest first
	List(ctx context.Context) ([]*entity.DeadLetter, error)
}
