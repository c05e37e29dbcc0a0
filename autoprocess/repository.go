package autoprocess

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Repository persists auto-process definitions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]Definition, error)
	// ListBySource returns the definitions that read from the given time series.
	ListBySource(ctx context.Context, sourceID string) ([]Definition, error)
	Save(ctx context.Context, definition *Definition) error
	Delete(ctx context.Context, id string) error

	// IsReady checks if the repository is ready for operations.
	IsReady() bool
	Close() error
}

type MemoryRepository struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	logger      *slog.Logger
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(logger *slog.Logger, definitions ...Definition) (*MemoryRepository, error) {
	repo := &MemoryRepository{
		definitions: make(map[string]Definition),
		logger:      logger,
	}

	for _, d := range definitions {
		if _, ok := repo.definitions[d.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionExists, d.ID)
		}
		repo.definitions[d.ID] = d
	}
	return repo, nil
}

func (r *MemoryRepository) IsReady() bool {
	return r.definitions != nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*Definition, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.definitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return &d, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]Definition, error) {
	return r.filter(ctx, func(Definition) bool { return true })
}

func (r *MemoryRepository) ListBySource(ctx context.Context, sourceID string) ([]Definition, error) {
	return r.filter(ctx, func(d Definition) bool { return d.SourceID == sourceID })
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(Definition) bool) ([]Definition, error) {
	defer ctx.Done()

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		if keep(d) {
			items = append(items, d)
		}
	}
	slices.SortFunc(items, func(a, b Definition) int {
		return strings.Compare(a.ID, b.ID)
	})
	return items, nil
}

// Save inserts or replaces a definition.
func (r *MemoryRepository) Save(ctx context.Context, definition *Definition) error {
	defer ctx.Done()

	if definition == nil || definition.ID == "" {
		return fmt.Errorf("definition must have an ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.definitions[definition.ID] = *definition
	r.logger.Debug("Definition saved", "definition_id", definition.ID)
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	defer ctx.Done()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	delete(r.definitions, id)
	return nil
}
