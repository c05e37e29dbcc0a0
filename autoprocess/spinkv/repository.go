// Package spinkv stores auto-process definitions in a Spin key-value store.
package spinkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spinframework/spin-go-sdk/v2/kv"

	"github.com/timgluz/autoprocess/autoprocess"
)

const keyPrefix = "autoprocess:"

var ErrKVStoreNotAvailable = errors.New("KV store not available")

type Repository struct {
	db     *kv.Store
	logger *slog.Logger
}

var _ autoprocess.Repository = (*Repository)(nil)

func NewRepository(storeName string, logger *slog.Logger) (*Repository, error) {
	db, err := kv.OpenStore(storeName)
	if err != nil {
		logger.Error("Failed to open Spin KV store", "store", storeName, "error", err)
		return nil, ErrKVStoreNotAvailable
	}

	return &Repository{
		db:     db,
		logger: logger,
	}, nil
}

func (r *Repository) IsReady() bool {
	if r.logger == nil {
		fmt.Println("Logger of spinkv.Repository is not initialized")
		return false
	}

	if r.db == nil {
		r.logger.Error("Spin KV store is not initialized")
		return false
	}
	return true
}

func (r *Repository) GetByID(ctx context.Context, id string) (*autoprocess.Definition, error) {
	defer ctx.Done()

	if !r.IsReady() {
		return nil, ErrKVStoreNotAvailable
	}

	ok, err := r.db.Exists(keyPrefix + id)
	if err != nil {
		r.logger.Error("Failed to check definition in Spin KV", "definition_id", id, "error", err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", autoprocess.ErrDefinitionNotFound, id)
	}

	blob, err := r.db.Get(keyPrefix + id)
	if err != nil {
		r.logger.Error("Failed to read definition from Spin KV", "definition_id", id, "error", err)
		return nil, err
	}

	var d autoprocess.Definition
	if err := json.Unmarshal(blob, &d); err != nil {
		r.logger.Error("Failed to unmarshal definition", "definition_id", id, "error", err)
		return nil, err
	}
	return &d, nil
}

func (r *Repository) List(ctx context.Context) ([]autoprocess.Definition, error) {
	return r.filter(ctx, func(autoprocess.Definition) bool { return true })
}

func (r *Repository) ListBySource(ctx context.Context, sourceID string) ([]autoprocess.Definition, error) {
	return r.filter(ctx, func(d autoprocess.Definition) bool { return d.SourceID == sourceID })
}

func (r *Repository) filter(ctx context.Context, keep func(autoprocess.Definition) bool) ([]autoprocess.Definition, error) {
	if !r.IsReady() {
		return nil, ErrKVStoreNotAvailable
	}

	keys, err := r.db.GetKeys()
	if err != nil {
		r.logger.Error("Failed to retrieve keys from Spin KV", "error", err)
		return nil, err
	}
	slices.Sort(keys)

	var items []autoprocess.Definition
	for _, key := range keys {
		id, ok := strings.CutPrefix(key, keyPrefix)
		if !ok {
			continue
		}

		d, err := r.GetByID(ctx, id)
		if err != nil {
			r.logger.Error("Skipping unreadable definition", "definition_id", id, "error", err)
			continue
		}
		if keep(*d) {
			items = append(items, *d)
		}
	}
	return items, nil
}

func (r *Repository) Save(ctx context.Context, definition *autoprocess.Definition) error {
	defer ctx.Done()

	if definition == nil || definition.ID == "" {
		return fmt.Errorf("definition must have an ID")
	}
	if !r.IsReady() {
		return ErrKVStoreNotAvailable
	}

	blob, err := json.Marshal(definition)
	if err != nil {
		r.logger.Error("Failed to marshal definition", "definition_id", definition.ID, "error", err)
		return err
	}

	if err := r.db.Set(keyPrefix+definition.ID, blob); err != nil {
		r.logger.Error("Failed to store definition in Spin KV", "definition_id", definition.ID, "error", err)
		return err
	}

	r.logger.Debug("Definition stored in Spin KV", "definition_id", definition.ID)
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	if err := r.db.Delete(keyPrefix + id); err != nil {
		r.logger.Error("Failed to delete definition from Spin KV", "definition_id", id, "error", err)
		return err
	}
	r.logger.Info("Definition deleted from Spin KV", "definition_id", id)
	return nil
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}

	r.db.Close()
	return nil
}
