package gqlfun

import (
	"context"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	_ "github.com/vektah/gqlparser/v2/validator/rules"
)

// CreateOperationContext parses and validates params against schema the way an HTTP transport would.
func CreateOperationContext(ctx context.Context, schema *ast.Schema, params *graphql.RawParams) (*graphql.OperationContext, gqlerror.List) {
	queryDoc, err := parser.ParseQuery(&ast.Source{
		Input:   params.Query,
		BuiltIn: false,
	})
	if err != nil {
		return nil, gqlerror.List{gqlerror.WrapIfUnwrapped(err)}
	}
	gErrs := validator.Validate(schema, queryDoc)
	if len(gErrs) != 0 {
		return nil, gErrs
	}

	operation := queryDoc.Operations.ForName(params.OperationName)
	if operation == nil {
		if params.OperationName != "" {
			return nil, gqlerror.List{gqlerror.Errorf(`operation %s not found`, params.OperationName)}
		}
		return nil, gqlerror.List{gqlerror.Errorf("operation name is required when the document has multiple operations")}
	}

	variables, err := validator.VariableValues(schema, operation, params.Variables)
	if err != nil {
		return nil, gqlerror.List{gqlerror.WrapIfUnwrapped(err)}
	}

	oc := &graphql.OperationContext{
		RawQuery:             params.Query,
		Variables:            variables,
		OperationName:        params.OperationName,
		Doc:                  queryDoc,
		Operation:            operation,
		DisableIntrospection: false,
		RecoverFunc:          graphql.DefaultRecover,
		ResolverMiddleware: func(ctx context.Context, next graphql.Resolver) (res interface{}, err error) {
			return next(ctx)
		},
		Stats: graphql.Stats{},
	}

	return oc, nil
}

// Execute runs a single operation against es without going through an HTTP handler.
func Execute(ctx context.Context, es graphql.ExecutableSchema, params *graphql.RawParams) *graphql.Response {
	oc, gErrs := CreateOperationContext(ctx, es.Schema(), params)
	if len(gErrs) != 0 {
		return &graphql.Response{Errors: gErrs}
	}
	ctx = graphql.WithOperationContext(ctx, oc)
	ctx = graphql.WithResponseContext(ctx, graphql.DefaultErrorPresenter, graphql.DefaultRecover)

	rh := es.Exec(ctx)
	resp := rh(ctx)
	if resp == nil {
		resp = &graphql.Response{}
	}
	if gErrs := graphql.GetErrors(ctx); len(gErrs) != 0 {
		resp.Errors = append(resp.Errors, gErrs...)
	}

	return resp
}
