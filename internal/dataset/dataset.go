package dataset

import (
	"github.com/pkg/errors"
)

var (
	ErrEmptyID     = errors.New("record id must not be empty")
	ErrDuplicateID = errors.New("record id is duplicated")
)

type Book struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	PageCount int    `json:"pageCount" yaml:"pageCount"`
	AuthorID  string `json:"authorId" yaml:"authorId"`
}

type Author struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"firstName" yaml:"firstName"`
	LastName  string `json:"lastName" yaml:"lastName"`
}

// Store holds the book and author collections.
// It is never modified after construction, so it can be shared by any number of goroutines.
type Store struct {
	books   []*Book
	authors []*Author
}

var defaultStore = &Store{
	books: []*Book{
		{
			ID:        "book-1",
			Name:      "Harry Potter and the Philosopher's Stone",
			PageCount: 223,
			AuthorID:  "author-1",
		},
		{
			ID:        "book-2",
			Name:      "Moby Dick",
			PageCount: 635,
			AuthorID:  "author-2",
		},
		{
			ID:        "book-3",
			Name:      "Interview with the vampire",
			PageCount: 371,
			AuthorID:  "author-3",
		},
	},
	authors: []*Author{
		{
			ID:        "author-1",
			FirstName: "Joanne",
			LastName:  "Rowling",
		},
		{
			ID:        "author-2",
			FirstName: "Herman",
			LastName:  "Melville",
		},
		{
			ID:        "author-3",
			FirstName: "Anne",
			LastName:  "Rice",
		},
	},
}

// Default returns the built-in catalogue.
func Default() *Store {
	return defaultStore
}

// New builds a Store from the given records.
// Identifiers must be non-empty and unique within each collection.
func New(books []*Book, authors []*Author) (*Store, error) {
	bookIDs := make([]string, 0, len(books))
	for i, book := range books {
		if book == nil {
			return nil, errors.Errorf("books[%d] is nil", i)
		}
		bookIDs = append(bookIDs, book.ID)
	}
	if err := checkIDs("books", bookIDs); err != nil {
		return nil, err
	}

	authorIDs := make([]string, 0, len(authors))
	for i, author := range authors {
		if author == nil {
			return nil, errors.Errorf("authors[%d] is nil", i)
		}
		authorIDs = append(authorIDs, author.ID)
	}
	if err := checkIDs("authors", authorIDs); err != nil {
		return nil, err
	}

	return &Store{
		books:   books,
		authors: authors,
	}, nil
}

func checkIDs(collection string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			return errors.Wrapf(ErrEmptyID, "%s[%d]", collection, i)
		}
		if _, ok := seen[id]; ok {
			return errors.Wrapf(ErrDuplicateID, "%s[%d]: %s", collection, i, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// AllBooks returns every book in definition order.
// The returned slice is shared and must not be modified.
func (s *Store) AllBooks() []*Book {
	return s.books
}

// AllAuthors returns every author in definition order.
// The returned slice is shared and must not be modified.
func (s *Store) AllAuthors() []*Author {
	return s.authors
}
