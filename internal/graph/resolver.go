package graph

import "github.com/vvakame/bookgraph/internal/dataset"

// It serves as dependency injection for your app, add any dependencies you require here.

type Resolver struct {
	store *dataset.Store
}

func NewResolver(store *dataset.Store) *Resolver {
	if store == nil {
		store = dataset.Default()
	}

	return &Resolver{
		store: store,
	}
}

type identifiable interface {
	*dataset.Book | *dataset.Author
}

// findByID returns the first record whose id matches, or nil.
func findByID[T identifiable](records []T, id string, idOf func(T) string) T {
	for _, record := range records {
		if idOf(record) == id {
			return record
		}
	}

	var zero T
	return zero
}
