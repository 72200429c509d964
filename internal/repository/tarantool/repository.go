// Package tarantool persists the dead-letter log of the outbound queue in Tarantool.
package tarantool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tarantool/go-tarantool/v2"

	"github.com/leesangbok1/vkc-sub001/internal/domain/entity"
	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Config represents Tarantool repository configuration
type Config struct {
	Address  string
	User     string
	Password string
	Timeout  time.Duration
}

// Repository implements repository.DeadLetterRepository using Tarantool
type Repository struct {
	conn   *tarantool.Connection
	logger *logger.Logger
	mu     sync.RWMutex
	closed bool
}

var _ repository.DeadLetterRepository = (*Repository)(nil)

// NewRepository creates a new Tarantool repository
func NewRepository(ctx context.Context, cfg *Config, log *logger.Logger) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}

	dialer := tarantool.NetDialer{
		Address:  cfg.Address,
		User:     cfg.User,
		Password: cfg.Password,
	}
	opts := tarantool.Opts{
		Timeout: cfg.Timeout,
	}

	conn, err := tarantool.Connect(ctx, dialer, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Tarantool: %w", err)
	}

	log.Info("Connected to Tarantool", logger.String("address", cfg.Address))
	return &Repository{conn: conn, logger: log}, nil
}

// Close closes the Tarantool connection
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.conn.Close()
}

// Ping checks if the connection to Tarantool is alive
func (r *Repository) Ping() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("repository is closed")
	}

	_, err := r.conn.Do(tarantool.NewPingRequest()).Get()
	return err
}

func (r *Repository) call(ctx context.Context, functionName string, args []interface{}) ([]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("repository is closed")
	}

	req := tarantool.NewCall17Request(functionName).Args(args).Context(ctx)
	return r.conn.Do(req).Get()
}

// Put records a dead letter, replacing any previous one with the same client id
func (r *Repository) Put(ctx context.Context, letter *entity.DeadLetter) error {
	if letter == nil {
		return fmt.Errorf("dead letter cannot be nil")
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	_, err = r.call(ctx, "dead_letter_put", []interface{}{
		letter.Message.ClientID,
		letter.Message.RoomID,
		string(payload),
		letter.FailedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to put dead letter: %w", err)
	}

	r.logger.Debug("Dead letter stored",
		logger.String("client_id", letter.Message.ClientID),
		logger.String("room_id", letter.Message.RoomID),
	)
	return nil
}

// Take removes and returns the dead letter of clientID
func (r *Repository) Take(ctx context.Context, clientID string) (*entity.DeadLetter, error) {
	resp, err := r.call(ctx, "dead_letter_take", []interface{}{clientID})
	if err != nil {
		return nil, fmt.Errorf("failed to take dead letter: %w", err)
	}

	if len(resp) == 0 || resp[0] == nil {
		return nil, fmt.Errorf("dead letter %s: %w", clientID, entity.ErrNotFound)
	}
	return decodeLetter(resp[0])
}

// List returns every dead letter, oldest first
func (r *Repository) List(ctx context.Context) ([]*entity.DeadLetter, error) {
	resp, err := r.call(ctx, "dead_letter_list", []interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	if len(resp) == 0 {
		return []*entity.DeadLetter{}, nil
	}
	return decodeLetters(resp[0])
}

func decodeLetters(raw interface{}) ([]*entity.DeadLetter, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return []*entity.DeadLetter{}, nil
	}

	letters := make([]*entity.DeadLetter, 0, len(items))
	for _, item := range items {
		letter, err := decodeLetter(item)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}

	sort.SliceStable(letters, func(i, j int) bool {
		return letters[i].FailedAt.Before(letters[j].FailedAt)
	})
	return letters, nil
}

func decodeLetter(raw interface{}) (*entity.DeadLetter, error) {
	payload := toString(raw)
	if payload == "" {
		return nil, fmt.Errorf("invalid dead letter payload %T", raw)
	}

	var letter entity.DeadLetter
	if err := json.Unmarshal([]byte(payload), &letter); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter: %w", err)
	}
	return &letter, nil
}

// Helper function for type conversion to string
func toString(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
