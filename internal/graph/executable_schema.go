package graph

import (
	"context"
	_ "embed"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/introspection"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/bookgraph/internal/dataset"
	"github.com/vvakame/bookgraph/internal/execute"
)

//go:embed schema.graphqls
var sdl string

var _ graphql.ExecutableSchema = (*executableSchema)(nil)

type ResolverRoot interface {
	Book() BookResolver
	Query() QueryResolver
}

type BookResolver interface {
	Author(ctx context.Context, obj *dataset.Book) (*dataset.Author, error)
}

type QueryResolver interface {
	BookByID(ctx context.Context, id string) (*dataset.Book, error)
	AllBooks(ctx context.Context) ([]*dataset.Book, error)
}

type ComplexityRoot struct {
	Query struct {
		AllBooks func(childComplexity int) int
	}
}

type Config struct {
	Resolvers  ResolverRoot
	Complexity ComplexityRoot
}

// SDL returns the schema definition served by this package.
func SDL() string {
	return sdl
}

// LoadSchema parses and validates the SDL together with the prelude.
// Loading through gqlparser also registers the query validation rules used by every transport.
func LoadSchema() (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{
		Name:    "schema.graphqls",
		Input:   sdl,
		BuiltIn: false,
	})
	if err != nil {
		return nil, err
	}

	return schema, nil
}

// New returns an executable schema answering queries from store.
// A nil store means the built-in catalogue.
func New(store *dataset.Store) (graphql.ExecutableSchema, error) {
	r := NewResolver(store)

	cfg := Config{Resolvers: r}
	cfg.Complexity.Query.AllBooks = func(childComplexity int) int {
		return 1 + childComplexity*len(r.store.AllBooks())
	}

	return NewExecutableSchema(cfg)
}

func NewExecutableSchema(cfg Config) (graphql.ExecutableSchema, error) {
	if cfg.Resolvers == nil {
		return nil, errors.New("resolvers are must required")
	}

	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}

	return &executableSchema{
		schema:     schema,
		resolvers:  cfg.Resolvers,
		complexity: cfg.Complexity,
	}, nil
}

type executableSchema struct {
	schema     *ast.Schema
	resolvers  ResolverRoot
	complexity ComplexityRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(typeName, fieldName string, childComplexity int, args map[string]interface{}) (int, bool) {
	switch typeName + "." + fieldName {
	case "Query.allBooks":
		if e.complexity.Query.AllBooks == nil {
			break
		}
		return e.complexity.Query.AllBooks(childComplexity), true
	}

	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	var done bool
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true

		oc := graphql.GetOperationContext(ctx)
		resp, gErr := execute.Execute(ctx, &execute.ExecutionArgs{
			Schema:         e.schema,
			Document:       oc.Doc,
			VariableValues: oc.Variables,
			OperationName:  oc.OperationName,
			FieldResolver:  e.resolveField,
		})
		if gErr != nil {
			return &graphql.Response{Errors: gqlerror.List{gErr}}
		}

		return resp
	}
}

func (e *executableSchema) resolveField(ctx context.Context, source interface{}, args, contextValue map[string]interface{}) (interface{}, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)

	var (
		result interface{}
		err    error
	)
	switch fc.Object + "." + fc.Field.Name {
	case "Query.bookById":
		result, err = e.bookByID(ctx, args)
	case "Query.allBooks":
		result, err = e.resolvers.Query().AllBooks(ctx)
	case "Book.author":
		book, ok := source.(*dataset.Book)
		if !ok {
			return nil, gqlerror.ErrorPathf(fc.Path(), "unexpected source %T for Book.author", source)
		}
		result, err = e.resolvers.Book().Author(ctx, book)
	case "Query.__schema":
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, gqlerror.ErrorPathf(fc.Path(), "introspection disabled")
		}
		return introspection.WrapSchema(e.schema), nil
	case "Query.__type":
		if graphql.GetOperationContext(ctx).DisableIntrospection {
			return nil, gqlerror.ErrorPathf(fc.Path(), "introspection disabled")
		}
		name, _ := args["name"].(string)
		return introspection.WrapTypeFromDef(e.schema, e.schema.Types[name]), nil
	default:
		return execute.DefaultFieldResolver(ctx, source, args, contextValue)
	}
	if err != nil {
		return nil, gqlerror.WrapPath(fc.Path(), err)
	}

	return result, nil
}

func (e *executableSchema) bookByID(ctx context.Context, args map[string]interface{}) (*dataset.Book, error) {
	rawID := args["id"]
	if rawID == nil {
		return nil, nil
	}
	id, err := graphql.UnmarshalID(rawID)
	if err != nil {
		return nil, err
	}

	return e.resolvers.Query().BookByID(ctx, id)
}
