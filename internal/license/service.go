package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

// Service is the core boundary used by the HTTP layer and the CLI.
// An empty collection argument means "resolve from the record" for writes
// and "every collection" for reads.
type Service interface {
	RecordLicense(ctx context.Context, collection string, rec Record) (bool, error)
	LookupLicense(ctx context.Context, collection, key string) (*Record, error)
	Activate(ctx context.Context, collection, key string) (*Record, error)
	ListAll(ctx context.Context, collection string) (Collection, error)
	ClearAll(ctx context.Context, collection string) error
}

// MutationHook is called after a collection was changed on disk.
type MutationHook func(ctx context.Context, collection string)

// ClearHook is called when a collection is emptied by an admin, before the
// mutation hooks run. at is the clear time; records issued at or before it
// belong to the cleared state.
type ClearHook func(ctx context.Context, collection string, at time.Time)

var _ Service = (*Manager)(nil)

// Manager implements Service on top of a Store.
type Manager struct {
	store             Store
	defaultCollection string
	perProduct        bool
	hooks             []MutationHook
	clearHooks        []ClearHook
	now               func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultCollection sets the collection used when none is given.
func WithDefaultCollection(id string) ManagerOption {
	return func(m *Manager) {
		m.defaultCollection = id
	}
}

// WithPerProduct files each record under its product's collection.
func WithPerProduct(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.perProduct = enabled
	}
}

// WithMutationHook registers a hook fired after every successful change.
func WithMutationHook(hook MutationHook) ManagerOption {
	return func(m *Manager) {
		m.hooks = append(m.hooks, hook)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:             store,
		defaultCollection: "licenses",
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnMutation registers a hook after construction. It is not safe to call
// concurrently with mutations.
func (m *Manager) OnMutation(hook MutationHook) {
	m.hooks = append(m.hooks, hook)
}

// OnClear registers a hook for admin clears. Same rules as OnMutation.
func (m *Manager) OnClear(hook ClearHook) {
	m.clearHooks = append(m.clearHooks, hook)
}

// CollectionFor returns the collection a new record is filed under.
func (m *Manager) CollectionFor(rec Record) string {
	if m.perProduct && rec.ProductID != "" {
		return CollectionID(rec.ProductID)
	}
	return m.defaultCollection
}

// RecordLicense stores rec. Duplicate keys are left untouched and reported
// with created=false.
func (m *Manager) RecordLicense(ctx context.Context, collection string, rec Record) (bool, error) {
	rec.LicenseKey = strings.TrimSpace(rec.LicenseKey)
	if rec.LicenseKey == "" {
		return false, ErrInvalidRecord
	}
	if collection == "" {
		collection = m.CollectionFor(rec)
	}
	if !ValidCollectionID(collection) {
		return false, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = m.now().UTC()
	}

	var created bool
	err := m.store.Update(ctx, collection, func(coll Collection) (Collection, error) {
		coll, created = coll.Append(rec)
		return coll, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record license: %w", err)
	}

	if !created {
		logger.Info(ctx, "License already recorded", tag.Collection(collection), tag.LicenseKey(rec.LicenseKey))
		return false, nil
	}
	logger.Info(ctx, "License recorded",
		tag.Collection(collection),
		tag.LicenseKey(rec.LicenseKey),
		tag.Product(rec.ProductName),
	)
	m.fire(ctx, collection)
	return true, nil
}

// LookupLicense returns the record with key.
func (m *Manager) LookupLicense(ctx context.Context, collection, key string) (*Record, error) {
	ids, err := m.collections(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		coll, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection %s: %w", id, err)
		}
		if rec, ok := coll.Find(key); ok {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// Activate marks the record as activated. Activating twice keeps the first
// activation time.
func (m *Manager) Activate(ctx context.Context, collection, key string) (*Record, error) {
	if collection == "" {
		id, err := m.locate(ctx, key)
		if err != nil {
			return nil, err
		}
		collection = id
	}

	var (
		result  Record
		changed bool
	)
	err := m.store.Update(ctx, collection, func(coll Collection) (Collection, error) {
		i := lo.IndexOf(coll.Keys(), key)
		if i < 0 {
			return nil, ErrNotFound
		}
		if !coll[i].Activated {
			coll[i].Activated = true
			coll[i].ActivatedAt = lo.ToPtr(m.now().UTC())
			changed = true
		}
		result = coll[i]
		return coll, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to activate license: %w", err)
	}

	if changed {
		logger.Info(ctx, "License activated", tag.Collection(collection), tag.LicenseKey(key))
		m.fire(ctx, collection)
	}
	return &result, nil
}

// ListAll returns the records of one collection, or of all collections when
// collection is empty.
func (m *Manager) ListAll(ctx context.Context, collection string) (Collection, error) {
	ids, err := m.collections(ctx, collection)
	if err != nil {
		return nil, err
	}
	var all Collection
	for _, id := range ids {
		coll, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection %s: %w", id, err)
		}
		all = append(all, coll...)
	}
	return all, nil
}

// ClearAll empties one collection, or all of them. Files are kept with an
// empty body so the removal propagates to the remote on the next push.
func (m *Manager) ClearAll(ctx context.Context, collection string) error {
	ids, err := m.collections(ctx, collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		at := m.now().UTC()
		if err := m.store.Save(ctx, id, Collection{}); err != nil {
			return fmt.Errorf("failed to clear collection %s: %w", id, err)
		}
		logger.Warn(ctx, "Collection cleared", tag.Collection(id))
		for _, hook := range m.clearHooks {
			hook(ctx, id, at)
		}
		m.fire(ctx, id)
	}
	return nil
}

func (m *Manager) collections(ctx context.Context, collection string) ([]string, error) {
	if collection != "" {
		if !ValidCollectionID(collection) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
		}
		return []string{collection}, nil
	}
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	if !lo.Contains(ids, m.defaultCollection) && !m.perProduct {
		ids = append(ids, m.defaultCollection)
	}
	return ids, nil
}

func (m *Manager) locate(ctx context.Context, key string) (string, error) {
	ids, err := m.collections(ctx, "")
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		coll, err := m.store.Load(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to load collection %s: %w", id, err)
		}
		if coll.Contains(key) {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (m *Manager) fire(ctx context.Context, collection string) {
	for _, hook := range m.hooks {
		hook(ctx, collection)
	}
}
