package records

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

// Repository stores extracted documents keyed by ID. List returns the newest
// documents first.
type Repository interface {
	Save(ctx context.Context, d *Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	List(ctx context.Context, limit, offset int) ([]*Document, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Document
}

// NewMemoryRepo returns a process-local repository.
func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[uuid.UUID]*Document)}
}

func (r *memoryRepo) Save(_ context.Context, d *Document) error {
	cp := *d
	r.mu.Lock()
	r.items[d.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Document, int, error) {
	r.mu.RLock()
	all := make([]*Document, 0, len(r.items))
	for _, d := range r.items {
		cp := *d
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return []*Document{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}
