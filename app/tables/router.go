package tables

import (
	"context"
	"fmt"
	"sort"

	"github.com/lysyi3m/product-comb/app/extract"
	"github.com/lysyi3m/product-comb/app/product"
)

// PageStorage persists the raw pages of one table.
type PageStorage interface {
	WritePage(ctx context.Context, page *product.RawPage) (int64, error)
	ReadPage(ctx context.Context, rowID int64) (*product.RawPage, error)
}

// StorageFactory returns the storage of a table.
type StorageFactory func(table string) PageStorage

type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Name)
}

// Handler is everything a stage needs to work on one table.
type Handler struct {
	Table     *Config
	Storage   PageStorage
	Extractor extract.Extractor
}

// Router resolves table names to handlers. It is built once at startup and
// never changes afterwards.
type Router struct {
	handlers map[string]Handler
}

func NewRouter(configs map[string]*Config, storageFor StorageFactory, extractors map[string]extract.Extractor) (*Router, error) {
	handlers := make(map[string]Handler, len(configs))

	for name, cfg := range configs {
		ex, err := extract.Lookup(extractors, cfg.Extractor)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}

		storage := storageFor(name)
		if storage == nil {
			return nil, fmt.Errorf("table %s: no storage", name)
		}

		handlers[name] = Handler{Table: cfg, Storage: storage, Extractor: ex}
	}

	return &Router{handlers: handlers}, nil
}

func (r *Router) HandlerFor(table string) (Handler, error) {
	h, ok := r.handlers[table]
	if !ok {
		return Handler{}, &UnknownTableError{Name: table}
	}
	return h, nil
}

func (r *Router) Tables() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
