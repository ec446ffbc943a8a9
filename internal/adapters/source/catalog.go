package source

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// Catalog owns a lazily loaded Table. The file is read on first use and
// kept until Invalidate is called.
type Catalog struct {
	path   string
	load   func(string) (*Table, error)
	logger logger.Logger

	mu    sync.Mutex
	table *Table
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithLoader replaces the file loader.
func WithLoader(load func(string) (*Table, error)) CatalogOption {
	return func(c *Catalog) {
		if load != nil {
			c.load = load
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog creates a Catalog for the CSV at path. Nothing is read yet.
func NewCatalog(path string, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		path:   path,
		load:   LoadFile,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the source file path.
func (c *Catalog) Path() string { return c.path }

// Table returns the cached table, loading it if needed. A failed load is not
// cached.
func (c *Catalog) Table(ctx context.Context) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil {
		return c.table, nil
	}

	start := time.Now()
	t, err := c.load(c.path)
	if err != nil {
		metrics.RecordError("source", "load")
		c.logger.Error(ctx, "failed to load incident source",
			logger.String("path", c.path),
			logger.Error(err),
		)
		return nil, err
	}
	c.table = t
	metrics.UpdateCatalogRows(t.Len())
	c.logger.Info(ctx, "incident source loaded",
		logger.String("path", c.path),
		logger.Int("rows", t.Len()),
		logger.Int("columns", len(t.Columns)),
		logger.Duration("took", time.Since(start)),
	)
	return t, nil
}

// Invalidate drops the cached table so the next call reloads the file.
func (c *Catalog) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.table = nil
	c.mu.Unlock()

	metrics.UpdateCatalogRows(0)
	c.logger.Info(ctx, "incident source invalidated", logger.String("path", c.path))
}

// Columns returns the source column names.
func (c *Catalog) Columns(ctx context.Context) ([]string, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.Columns), nil
}

// List returns the first limit rows as id and summary pairs.
func (c *Catalog) List(ctx context.Context, limit int) ([]Listing, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return nil, err
	}
	return t.Head(limit), nil
}

// Find looks up one incident by id under the given mapping.
func (c *Catalog) Find(ctx context.Context, m ColumnMap, id string) (model.Incident, error) {
	t, err := c.Table(ctx)
	if err != nil {
		return model.Incident{}, err
	}
	return t.Find(m, id)
}
