package execute

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"github.com/vvakame/bookgraph/internal/log"
	"github.com/vvakame/bookgraph/internal/utils"
	"golang.org/x/sync/errgroup"
)

// errNullPropagated marks a value that became null because a non-null descendant failed.
// The descendant's error is already recorded, so this one never reaches the response.
var errNullPropagated = &gqlerror.Error{Message: "null propagated from non-null field"}

type ExecutionContext struct {
	Schema         *ast.Schema
	Fragments      ast.FragmentDefinitionList
	RootValue      interface{}
	ContextValue   map[string]interface{}
	Operation      *ast.OperationDefinition
	VariableValues map[string]interface{}
	FieldResolver  FieldResolver

	mu     sync.Mutex
	errors gqlerror.List
}

func (exeContext *ExecutionContext) addError(gErr *gqlerror.Error) {
	exeContext.mu.Lock()
	defer exeContext.mu.Unlock()
	exeContext.errors = append(exeContext.errors, gErr)
}

func (exeContext *ExecutionContext) Errors() gqlerror.List {
	exeContext.mu.Lock()
	defer exeContext.mu.Unlock()
	return exeContext.errors
}

type ExecutionArgs struct {
	Schema         *ast.Schema
	Document       *ast.QueryDocument
	RootValue      interface{}            // optional
	ContextValue   map[string]interface{} // optional
	VariableValues map[string]interface{} // optional
	OperationName  string                 // optional
	FieldResolver  FieldResolver          // optional
}

var _ FieldResolver = DefaultFieldResolver

// FieldResolver produces the value of the field held by graphql.GetFieldContext(ctx).
// Returning a nil value means null; it is not an error.
type FieldResolver func(ctx context.Context, source interface{}, args, contextValue map[string]interface{}) (interface{}, *gqlerror.Error)

// Execute runs the selected operation of args.Document and builds its response.
//
// ctx must carry a graphql.OperationContext for args.Document.
// Field errors are reported in the response, the returned error is only for
// arguments that make execution impossible.
func Execute(ctx context.Context, args *ExecutionArgs) (*graphql.Response, *gqlerror.Error) {
	gErr := assertValidExecutionArguments(args.Schema, args.Document)
	if gErr != nil {
		return nil, gErr
	}

	exeContext, gErrs := buildExecutionContext(
		args.Schema,
		args.Document,
		args.RootValue,
		args.ContextValue,
		args.VariableValues,
		args.OperationName,
		args.FieldResolver,
	)
	if len(gErrs) != 0 {
		return &graphql.Response{
			Errors: gErrs,
		}, nil
	}

	// If errors are encountered while executing a GraphQL field, only that
	// field and its descendants will be omitted, and sibling fields will still
	// be executed.
	data, gErr := executeOperation(ctx, exeContext, exeContext.Operation, args.RootValue)
	if gErr != nil {
		return nil, gErr
	}

	return buildResponse(exeContext, data), nil
}

func buildResponse(exeContext *ExecutionContext, data graphql.Marshaler) *graphql.Response {
	var buf bytes.Buffer
	data.MarshalGQL(&buf)

	// fields complete concurrently, so errors are ordered by path instead of arrival
	gErrs := exeContext.Errors()
	sort.SliceStable(gErrs, func(i, j int) bool {
		return comparePath(gErrs[i].Path, gErrs[j].Path) < 0
	})

	return &graphql.Response{
		Errors: gErrs,
		Data:   buf.Bytes(),
	}
}

// comparePath orders paths element by element. Indexes compare numerically and sort before names.
func comparePath(a, b ast.Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch x := a[i].(type) {
		case ast.PathIndex:
			y, ok := b[i].(ast.PathIndex)
			if !ok {
				return -1
			}
			if x != y {
				if x < y {
					return -1
				}
				return 1
			}
		case ast.PathName:
			y, ok := b[i].(ast.PathName)
			if !ok {
				return 1
			}
			if x != y {
				return strings.Compare(string(x), string(y))
			}
		}
	}

	return len(a) - len(b)
}

func assertValidExecutionArguments(schema *ast.Schema, document *ast.QueryDocument) *gqlerror.Error {
	if schema == nil {
		return gqlerror.Errorf("must provide schema")
	}
	if document == nil {
		return gqlerror.Errorf("must provide document")
	}

	return nil
}

func buildExecutionContext(schema *ast.Schema, document *ast.QueryDocument, rootValue interface{}, contextValue map[string]interface{}, rawVariableValues map[string]interface{}, operationName string, fieldResolver FieldResolver) (*ExecutionContext, gqlerror.List) {
	if operationName == "" && len(document.Operations) > 1 {
		return nil, gqlerror.List{gqlerror.Errorf("must provide operation name if query contains multiple operations")}
	}
	operation := document.Operations.ForName(operationName)
	if operation == nil {
		if operationName != "" {
			return nil, gqlerror.List{gqlerror.Errorf(`unknown operation named "%s"`, operationName)}
		}
		return nil, gqlerror.List{gqlerror.Errorf("must provide an operation")}
	}

	coercedVariableValues, err := validator.VariableValues(schema, operation, rawVariableValues)
	if err != nil {
		return nil, gqlerror.List{gqlerror.WrapIfUnwrapped(err)}
	}

	if fieldResolver == nil {
		fieldResolver = DefaultFieldResolver
	}

	return &ExecutionContext{
		Schema:         schema,
		Fragments:      document.Fragments,
		RootValue:      rootValue,
		ContextValue:   contextValue,
		Operation:      operation,
		VariableValues: coercedVariableValues,
		FieldResolver:  fieldResolver,
	}, nil
}

// executeOperation resolves the root selection set of operation.
func executeOperation(ctx context.Context, exeContext *ExecutionContext, operation *ast.OperationDefinition, rootValue interface{}) (graphql.Marshaler, *gqlerror.Error) {
	if !graphql.HasOperationContext(ctx) {
		panic("ctx doesn't have OperationContext")
	}

	var typ *ast.Definition
	switch operation.Operation {
	case ast.Query:
		typ = exeContext.Schema.Query
		if typ == nil {
			return nil, gqlerror.ErrorPosf(operation.Position, "schema does not define the required query root type")
		}
	case ast.Mutation:
		typ = exeContext.Schema.Mutation
		if typ == nil {
			return nil, gqlerror.ErrorPosf(operation.Position, "schema is not configured for mutations")
		}
	case ast.Subscription:
		return nil, gqlerror.ErrorPosf(operation.Position, "subscriptions are not supported")
	default:
		return nil, gqlerror.ErrorPosf(operation.Position, "can only have query and mutation operations")
	}

	fields := graphql.CollectFields(graphql.GetOperationContext(ctx), operation.SelectionSet, []string{typ.Name})

	// Errors from sub-fields of a NonNull type may propagate to the top level,
	// at which point the entire data becomes null.
	result, _ := executeFields(ctx, exeContext, typ, rootValue, fields, operation.Operation == ast.Mutation)

	return result, nil
}

// executeFields resolves fields on sourceValue, serially for mutations and concurrently otherwise.
// The second return value is false when a non-null field failed and the whole object must be null.
func executeFields(ctx context.Context, exeContext *ExecutionContext, parentType *ast.Definition, sourceValue interface{}, fields []graphql.CollectedField, serially bool) (graphql.Marshaler, bool) {
	out := graphql.NewFieldSet(fields)
	succeeded := make([]bool, len(fields))

	if serially {
		for i, field := range fields {
			out.Values[i], succeeded[i] = executeField(ctx, exeContext, parentType, sourceValue, field)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(fields))
		for i, field := range fields {
			i, field := i, field
			go func() {
				defer wg.Done()
				out.Values[i], succeeded[i] = executeField(ctx, exeContext, parentType, sourceValue, field)
			}()
		}
		wg.Wait()
	}

	for i, field := range fields {
		if succeeded[i] {
			continue
		}
		if field.Definition != nil && field.Definition.Type.NonNull {
			return graphql.Null, false
		}
	}

	return out, true
}

// executeField figures out the value that the field returns by calling its resolve
// function, then calls completeValue to serialize scalars, or execute the
// sub-selection-set for objects.
// Errors are recorded here, the bool result reports whether the field completed.
func executeField(ctx context.Context, exeContext *ExecutionContext, parentType *ast.Definition, source interface{}, field graphql.CollectedField) (res graphql.Marshaler, ok bool) {
	fc := &graphql.FieldContext{
		Object:     parentType.Name,
		Field:      field,
		IsResolver: true,
	}
	ctx = graphql.WithFieldContext(ctx, fc)

	// must be installed before anything touches the field definition
	defer func() {
		if r := recover(); r != nil {
			log.FromContext(ctx).Error(fmt.Errorf("%v", r), "resolver panicked", "path", fc.Path().String())
			exeContext.addError(gqlerror.ErrorPathf(fc.Path(), "internal system error"))
			res, ok = graphql.Null, false
		}
	}()

	if field.Name == "__typename" {
		return graphql.MarshalString(parentType.Name), true
	}

	fieldDef := field.Definition
	if fieldDef == nil {
		exeContext.addError(gqlerror.ErrorPathf(fc.Path(), `cannot query field "%s" on type "%s"`, field.Name, parentType.Name))
		return graphql.Null, false
	}
	fc.Args = field.ArgumentMap(exeContext.VariableValues)

	result, gErr := exeContext.FieldResolver(ctx, source, fc.Args, exeContext.ContextValue)
	if gErr != nil {
		if gErr.Path == nil {
			gErr.Path = fc.Path()
		}
		exeContext.addError(gErr)
		return graphql.Null, false
	}
	fc.Result = result

	completed, gErr := completeValue(ctx, exeContext, fieldDef.Type, field, result)
	if gErr != nil {
		if gErr != errNullPropagated {
			exeContext.addError(gErr)
		}
		return graphql.Null, false
	}

	return completed, true
}

// completeValue turns a resolved value into its response form.
//
// If the field type is Non-Null, then this recursively completes the value
// for the inner type. It returns a field error if that completion returns null.
//
// If the field type is a List, then this recursively completes the value
// for the inner type on each item in the list.
//
// If the field type is a Scalar or Enum, ensures the completed value is a legal
// value of the type.
//
// Otherwise, the field type expects a sub-selection set, and will complete the
// value by executing all sub-selections.
func completeValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Type, fieldNode graphql.CollectedField, result interface{}) (graphql.Marshaler, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)

	if err, ok := result.(error); ok && err != nil {
		return graphql.Null, gqlerror.WrapPath(fc.Path(), err)
	}

	if returnType.NonNull {
		// a nil slice is an empty list, as gqlgen generated marshalers treat it
		if returnType.Elem != nil && isNilSlice(result) {
			return graphql.Array{}, nil
		}

		copied := *returnType
		copied.NonNull = false
		completed, gErr := completeValue(ctx, exeContext, &copied, fieldNode, result)
		if gErr != nil {
			return graphql.Null, gErr
		}
		if completed == graphql.Null {
			objectName := fc.Object
			if fieldNode.ObjectDefinition != nil {
				objectName = fieldNode.ObjectDefinition.Name
			}
			return graphql.Null, gqlerror.ErrorPathf(fc.Path(), "cannot return null for non-nullable field %s.%s", objectName, fieldNode.Name)
		}
		return completed, nil
	}

	if utils.IsNil(result) {
		return graphql.Null, nil
	}

	if returnType.Elem != nil {
		return completeListValue(ctx, exeContext, returnType, fieldNode, result)
	}

	def := exeContext.Schema.Types[returnType.NamedType]
	switch {
	case utils.IsLeafType(def):
		return completeLeafValue(ctx, returnType, result)
	case utils.IsObjectType(def):
		return completeObjectValue(ctx, exeContext, def, fieldNode, result)
	case utils.IsAbstractType(def):
		return graphql.Null, gqlerror.ErrorPathf(fc.Path(), "abstract type %s is not supported", returnType.Name())
	}

	return graphql.Null, gqlerror.ErrorPathf(fc.Path(), "cannot complete value of unexpected output type: %s", returnType.String())
}

// Complete a list value by completing each item in the list with the inner type.
// Items are completed concurrently; a failed non-null item nulls the whole list.
func completeListValue(ctx context.Context, exeContext *ExecutionContext, returnType *ast.Type, fieldNode graphql.CollectedField, result interface{}) (graphql.Marshaler, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)

	resultRV := reflect.ValueOf(result)
	if resultRV.Kind() != reflect.Slice && resultRV.Kind() != reflect.Array {
		return graphql.Null, gqlerror.ErrorPathf(fc.Path(), `expected slice, but did not find one for field "%s.%s"`, fc.Object, fieldNode.Name)
	}

	itemType := returnType.Elem

	ret := make(graphql.Array, resultRV.Len())
	var eg errgroup.Group
	for index := 0; index < resultRV.Len(); index++ {
		index := index
		item := resultRV.Index(index).Interface()

		eg.Go(func() error {
			fc := &graphql.FieldContext{
				Index:  &index,
				Result: item,
			}
			ctx := graphql.WithFieldContext(ctx, fc)

			completedItem, gErr := completeValue(ctx, exeContext, itemType, fieldNode, item)
			if gErr != nil {
				if gErr != errNullPropagated {
					exeContext.addError(gErr)
				}
				ret[index] = graphql.Null
				if itemType.NonNull {
					return errNullPropagated
				}
				return nil
			}

			ret[index] = completedItem
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return graphql.Null, errNullPropagated
	}

	return ret, nil
}

// Complete a Scalar or Enum by serializing to a valid value.
func completeLeafValue(ctx context.Context, returnType *ast.Type, result interface{}) (graphql.Marshaler, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)

	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return graphql.Null, nil
		}
		rv = rv.Elem()
	}

	switch v := rv.Interface().(type) {
	case graphql.Marshaler:
		return v, nil
	case time.Time:
		return graphql.MarshalTime(v), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return graphql.MarshalBoolean(rv.Bool()), nil
	case reflect.String:
		return graphql.MarshalString(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return graphql.MarshalInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return graphql.MarshalInt64(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return graphql.MarshalFloat(rv.Float()), nil
	}

	return graphql.Null, gqlerror.ErrorPathf(fc.Path(), "cannot serialize %T as %s", result, returnType.Name())
}

// Complete an Object value by executing all sub-selections.
func completeObjectValue(ctx context.Context, exeContext *ExecutionContext, def *ast.Definition, fieldNode graphql.CollectedField, result interface{}) (graphql.Marshaler, *gqlerror.Error) {
	subFieldNodes := graphql.CollectFields(graphql.GetOperationContext(ctx), fieldNode.Selections, []string{def.Name})

	completed, ok := executeFields(ctx, exeContext, def, result, subFieldNodes, false)
	if !ok {
		return graphql.Null, errNullPropagated
	}

	return completed, nil
}

func isNilSlice(v interface{}) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.IsNil()
}
