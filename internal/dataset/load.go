package dataset

import (
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

type fixture struct {
	Books   []*Book   `yaml:"books"`
	Authors []*Author `yaml:"authors"`
}

// Load reads a YAML catalogue like:
//
//	books:
//	  - id: book-1
//	    name: Moby Dick
//	    pageCount: 635
//	    authorId: author-1
//	authors:
//	  - id: author-1
//	    firstName: Herman
//	    lastName: Melville
func Load(r io.Reader) (*Store, error) {
	var f fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "failed to decode dataset")
	}

	return New(f.Books, f.Authors)
}

func LoadFile(path string) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dataset")
	}
	defer file.Close()

	store, err := Load(file)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %s", path)
	}

	return store, nil
}
