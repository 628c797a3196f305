package graph

import (
	"context"

	"github.com/vvakame/bookgraph/internal/dataset"
)

// Author is the resolver for the author field.
func (r *bookResolver) Author(ctx context.Context, obj *dataset.Book) (*dataset.Author, error) {
	if obj == nil {
		return nil, nil
	}

	return findByID(r.store.AllAuthors(), obj.AuthorID, func(author *dataset.Author) string {
		return author.ID
	}), nil
}

// BookByID is the resolver for the bookById field.
func (r *queryResolver) BookByID(ctx context.Context, id string) (*dataset.Book, error) {
	return findByID(r.store.AllBooks(), id, func(book *dataset.Book) string {
		return book.ID
	}), nil
}

// AllBooks is the resolver for the allBooks field.
func (r *queryResolver) AllBooks(ctx context.Context) ([]*dataset.Book, error) {
	return r.store.AllBooks(), nil
}

// Book returns BookResolver implementation.
func (r *Resolver) Book() BookResolver { return &bookResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

type bookResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
