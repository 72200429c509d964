package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
)

// DeadLetters is an in-process dead-letter log
type DeadLetters struct {
	mu      sync.Mutex
	letters []*entity.DeadLetter
}

var _ repository.DeadLetterRepository = (*DeadLetters)(nil)

// NewDeadLetters creates an empty dead-letter log
func NewDeadLetters() *DeadLetters {
	return &DeadLetters{}
}

// Put records a dead letter
func (d *DeadLetters) Put(ctx context.Context, letter *entity.DeadLetter) error {
	if letter == nil {
		return fmt.Errorf("dead letter cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *letter
	d.letters = append(d.letters, &cp)
	return nil
}

// Take removes and returns the dead letter of clientID
func (d *DeadLetters) Take(ctx context.Context, clientID string) (*entity.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, l := range d.letters {
		if l.Message.ClientID == clientID {
			d.letters = append(d.letters[:i], d.letters[i+1:]...)
			return l, nil
		}
	}
	return nil, fmt.Errorf("dead letter %s: %w", clientID, entity.ErrNotFound)
}

// List returns every dead letter, oldest first
func (d *DeadLetters) List(ctx context.Context) ([]*entity.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*entity.DeadLetter, len(d.letters))
	copy(out, d.letters)
	return out, nil
}

// Len returns the number of dead letters
func (d *DeadLetters) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.letters)
}
