package graph

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/99designs/gqlgen/graphql"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vvakame/bookgraph/internal/dataset"
	"github.com/vvakame/bookgraph/internal/gqlfun"
	"github.com/vvakame/bookgraph/internal/log"
	"github.com/vvakame/bookgraph/internal/testutils"
)

func TestExecutableSchema(t *testing.T) {
	const testFileDir = "./_testdata/assets"
	const expectFileDir = "./_testdata/expected"

	files, err := os.ReadDir(testFileDir)
	require.NoError(t, err)

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".graphql") {
			continue
		}
		file := file

		t.Run(file.Name(), func(t *testing.T) {
			ctx := context.Background()
			ctx = log.WithLogger(ctx, testr.New(t))

			b, err := os.ReadFile(path.Join(testFileDir, file.Name()))
			require.NoError(t, err)
			rawQuery := string(b)

			operationName := testutils.FindOptionString(t, "operationName", rawQuery)

			var store *dataset.Store
			if datasetFile := testutils.FindOptionString(t, "dataset", rawQuery); datasetFile != "" {
				store, err = dataset.LoadFile(path.Join(testFileDir, datasetFile))
				require.NoError(t, err)
			}

			variables := map[string]interface{}{}
			if variablesFile := testutils.FindOptionString(t, "variables", rawQuery); variablesFile != "" {
				b, err := os.ReadFile(path.Join(testFileDir, variablesFile))
				require.NoError(t, err)
				require.NoError(t, json.Unmarshal(b, &variables))
			}

			es, err := New(store)
			require.NoError(t, err)

			resp := gqlfun.Execute(ctx, es, &graphql.RawParams{
				Query:         rawQuery,
				OperationName: operationName,
				Variables:     variables,
			})

			responseBytes, err := json.MarshalIndent(resp, "", "  ")
			require.NoError(t, err)

			fileName := strings.TrimSuffix(file.Name(), ".graphql")
			testutils.CheckGoldenFile(t, responseBytes, path.Join(expectFileDir, fileName+".response.json"))
		})
	}
}

func TestExecutableSchema_Schema(t *testing.T) {
	es, err := New(nil)
	require.NoError(t, err)

	schema := es.Schema()
	require.NotNil(t, schema.Query)
	assert.Equal(t, "Query", schema.Query.Name)
	assert.NotNil(t, schema.Query.Fields.ForName("bookById"))
	assert.NotNil(t, schema.Query.Fields.ForName("allBooks"))
	assert.NotNil(t, schema.Types["Book"].Fields.ForName("author"))
	assert.Nil(t, schema.Mutation)

	_, err = parser.ParseSchema(&ast.Source{Input: SDL()})
	assert.NoError(t, err)
}

func TestExecutableSchema_Complexity(t *testing.T) {
	es, err := New(nil)
	require.NoError(t, err)

	v, ok := es.Complexity("Query", "allBooks", 4, nil)
	assert.True(t, ok)
	assert.Equal(t, 1+4*3, v)

	_, ok = es.Complexity("Query", "bookById", 4, map[string]interface{}{"id": "book-1"})
	assert.False(t, ok)
}

func TestExecutableSchema_errors(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testr.New(t))

	es, err := New(nil)
	require.NoError(t, err)

	t.Run("unknown field", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `{ bookById(id: "book-1") { title } }`})
		require.Len(t, resp.Errors, 1)
		assert.Contains(t, resp.Errors[0].Message, `Cannot query field "title" on type "Book"`)
		assert.Empty(t, resp.Data)
	})

	t.Run("mutation is not part of the schema", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `mutation { addBook(id: "x") { id } }`})
		assert.NotEmpty(t, resp.Errors)
	})

	t.Run("numeric id is coerced", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `{ bookById(id: 1) { id } }`})
		assert.Empty(t, resp.Errors)
		assert.JSONEq(t, `{"bookById":null}`, string(resp.Data))
	})

	t.Run("missing id argument", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `{ bookById { id } }`})
		assert.Empty(t, resp.Errors)
		assert.JSONEq(t, `{"bookById":null}`, string(resp.Data))
	})

	t.Run("unknown argument", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `{ bookById(id: "book-1", bogus: 1) { id } }`})
		require.Len(t, resp.Errors, 1)
		assert.Contains(t, resp.Errors[0].Message, `Unknown argument "bogus" on field "Query.bookById"`)
		assert.Empty(t, resp.Data)
	})

	t.Run("null id variable", func(t *testing.T) {
		resp := gqlfun.Execute(ctx, es, &graphql.RawParams{
			Query:     `query ($id: ID) { bookById(id: $id) { id } }`,
			Variables: map[string]interface{}{"id": nil},
		})
		assert.Empty(t, resp.Errors)
		assert.JSONEq(t, `{"bookById":null}`, string(resp.Data))
	})
}

func TestExecutableSchema_introspectionSchema(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testr.New(t))

	es, err := New(nil)
	require.NoError(t, err)

	resp := gqlfun.Execute(ctx, es, &graphql.RawParams{
		Query: `{ __schema { queryType { name } mutationType { name } types { name } } }`,
	})
	require.Empty(t, resp.Errors)

	var data struct {
		Schema struct {
			QueryType struct {
				Name string `json:"name"`
			} `json:"queryType"`
			MutationType *struct{} `json:"mutationType"`
			Types        []struct {
				Name string `json:"name"`
			} `json:"types"`
		} `json:"__schema"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	assert.Equal(t, "Query", data.Schema.QueryType.Name)
	assert.Nil(t, data.Schema.MutationType)

	var names []string
	for _, typ := range data.Schema.Types {
		names = append(names, typ.Name)
	}
	assert.Contains(t, names, "Book")
	assert.Contains(t, names, "Author")
}

const introspectionQuery = `
query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { ...FullType }
    directives { name description locations args { ...InputValue } }
  }
}
fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) { name description isDeprecated deprecationReason }
  possibleTypes { ...TypeRef }
}
fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}
fragment TypeRef on __Type {
  kind
  name
  ofType { kind name ofType { kind name ofType { kind name ofType { kind name } } } }
}
`

func TestExecutableSchema_introspectionQuery(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testr.New(t))

	es, err := New(nil)
	require.NoError(t, err)

	resp := gqlfun.Execute(ctx, es, &graphql.RawParams{
		Query:         introspectionQuery,
		OperationName: "IntrospectionQuery",
	})
	require.Empty(t, resp.Errors)

	type inputValue struct {
		Name string `json:"name"`
	}
	var data struct {
		Schema struct {
			Types []struct {
				Name   string `json:"name"`
				Fields []struct {
					Name string        `json:"name"`
					Args *[]inputValue `json:"args"`
				} `json:"fields"`
			} `json:"types"`
			Directives []struct {
				Name string       `json:"name"`
				Args []inputValue `json:"args"`
			} `json:"directives"`
		} `json:"__schema"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	fieldArgs := map[string][]string{}
	for _, typ := range data.Schema.Types {
		if typ.Name != "Query" && typ.Name != "Book" && typ.Name != "Author" {
			continue
		}
		require.NotNil(t, typ.Fields, typ.Name)
		for _, field := range typ.Fields {
			require.NotNil(t, field.Args, "%s.%s", typ.Name, field.Name)
			names := []string{}
			for _, arg := range *field.Args {
				names = append(names, arg.Name)
			}
			fieldArgs[typ.Name+"."+field.Name] = names
		}
	}
	assert.Equal(t, map[string][]string{
		"Query.bookById":   {"id"},
		"Query.allBooks":   {},
		"Book.id":          {},
		"Book.name":        {},
		"Book.pageCount":   {},
		"Book.author":      {},
		"Author.id":        {},
		"Author.firstName": {},
		"Author.lastName":  {},
	}, fieldArgs)

	var directives []string
	for _, directive := range data.Schema.Directives {
		directives = append(directives, directive.Name)
	}
	assert.Contains(t, directives, "include")
	assert.Contains(t, directives, "skip")
}

type failingQuery struct{ QueryResolver }

func (failingQuery) AllBooks(ctx context.Context) ([]*dataset.Book, error) {
	return nil, errors.New("catalogue unavailable")
}

type failingRoot struct{ *Resolver }

func (r failingRoot) Query() QueryResolver { return failingQuery{r.Resolver.Query()} }

func TestExecutableSchema_resolverError(t *testing.T) {
	ctx := context.Background()
	ctx = log.WithLogger(ctx, testr.New(t))

	es, err := NewExecutableSchema(Config{Resolvers: failingRoot{NewResolver(nil)}})
	require.NoError(t, err)

	resp := gqlfun.Execute(ctx, es, &graphql.RawParams{Query: `{ allBooks { id } bookById(id: "book-2") { name } }`})
	assert.JSONEq(t, `{"allBooks":null,"bookById":{"name":"Moby Dick"}}`, string(resp.Data))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "catalogue unavailable", resp.Errors[0].Message)
	assert.Equal(t, ast.Path{ast.PathName("allBooks")}, resp.Errors[0].Path)
}

func TestNewExecutableSchema_noResolvers(t *testing.T) {
	_, err := NewExecutableSchema(Config{})
	assert.Error(t, err)
}
