package repo

import (
	"context"
	"sync"

	"github.com/tinoosan/tubeconv/internal/data"
)

type InMemoryConversionRepo struct {
	mu          sync.RWMutex
	conversions data.Conversions
}

func NewInMemoryConversionRepo() *InMemoryConversionRepo {
	return &InMemoryConversionRepo{
		conversions: make(data.Conversions, 0),
	}
}

func (r *InMemoryConversionRepo) List(ctx context.Context) (data.Conversions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conversions.Clone(), nil
}

func (r *InMemoryConversionRepo) Get(ctx context.Context, token string) (*data.Conversion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, err := r.findByToken(token)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (r *InMemoryConversionRepo) ListByFingerprint(ctx context.Context, fprint string) (data.Conversions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(data.Conversions, 0)
	for _, c := range r.conversions {
		if c.Fingerprint == fprint {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// Add stores a copy of c. Tokens must be unique.
func (r *InMemoryConversionRepo) Add(ctx context.Context, c *data.Conversion) (*data.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.findByToken(c.Token); err == nil {
		return nil, data.ErrConflict
	}
	stored := c.Clone()
	r.conversions = append(r.conversions, stored)
	return stored.Clone(), nil
}

func (r *InMemoryConversionRepo) Update(ctx context.Context, token string, mutate func(*data.Conversion) error) (*data.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.findByToken(token)
	if err != nil {
		return nil, err
	}
	next := c.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	// Identity fields are immutable.
	next.Token, next.CreatedAt, next.Fingerprint = c.Token, c.CreatedAt, c.Fingerprint
	*c = *next
	return c.Clone(), nil
}

func (r *InMemoryConversionRepo) findByToken(token string) (*data.Conversion, error) {
	for _, c := range r.conversions {
		if c.Token == token {
			return c, nil
		}
	}
	return nil, data.ErrNotFound
}
