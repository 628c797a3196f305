package execute

import (
	"context"
	"reflect"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vvakame/bookgraph/internal/utils"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// DefaultFieldResolver reads the property of source that matches the field name.
//
// For maps the key is the field name (or its alias).
// For structs an exported method is preferred, then an exported field.
// Matching is case-insensitive and a field's json tag is honoured, so `pageCount` finds
// PageCount and `authorId` finds a field tagged `json:"authorId"`.
// Methods may take a context.Context and bool parameters, which receive the field's
// Boolean arguments such as includeDeprecated on introspection fields.
func DefaultFieldResolver(ctx context.Context, source interface{}, args, contextValue map[string]interface{}) (interface{}, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)
	if fc == nil {
		panic("ctx doesn't have FieldContext")
	}

	if utils.IsNil(source) {
		return nil, nil
	}

	name := fc.Field.Name

	if utils.IsObjectLike(source) {
		source := source.(map[string]interface{})
		if property, ok := source[name]; ok {
			return property, nil
		}
		return source[fc.Field.Alias], nil
	}

	rv := reflect.ValueOf(source)
	if rv.Kind() != reflect.Ptr {
		// methods may have pointer receivers
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		rv = ptr
	}

	if method, ok := methodByName(rv, name); ok {
		return callMethod(ctx, method, args)
	}

	sv := rv.Elem()
	if sv.Kind() != reflect.Struct {
		return nil, nil
	}
	if index, ok := fieldIndexByName(sv.Type(), name); ok {
		return sv.FieldByIndex(index).Interface(), nil
	}

	return nil, nil
}

func methodByName(rv reflect.Value, name string) (reflect.Value, bool) {
	typ := rv.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if m.PkgPath != "" {
			continue
		}
		if strings.EqualFold(m.Name, name) {
			return rv.Method(i), true
		}
	}
	return reflect.Value{}, false
}

func fieldIndexByName(typ reflect.Type, name string) ([]int, bool) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == name {
			return f.Index, true
		}
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if strings.EqualFold(f.Name, name) {
			return f.Index, true
		}
	}
	return nil, false
}

func callMethod(ctx context.Context, method reflect.Value, args map[string]interface{}) (interface{}, *gqlerror.Error) {
	fc := graphql.GetFieldContext(ctx)
	mt := method.Type()

	// Boolean arguments fill bool parameters in declaration order.
	var boolArgs []bool
	if fc.Field.Definition != nil {
		for _, argDef := range fc.Field.Definition.Arguments {
			if argDef.Type.Elem == nil && argDef.Type.NamedType == "Boolean" {
				v, _ := args[argDef.Name].(bool)
				boolArgs = append(boolArgs, v)
			}
		}
	}

	in := make([]reflect.Value, 0, mt.NumIn())
	for i := 0; i < mt.NumIn(); i++ {
		switch pt := mt.In(i); {
		case pt == contextType:
			in = append(in, reflect.ValueOf(ctx))
		case pt.Kind() == reflect.Bool && len(boolArgs) != 0:
			in = append(in, reflect.ValueOf(boolArgs[0]).Convert(pt))
			boolArgs = boolArgs[1:]
		default:
			return nil, gqlerror.ErrorPathf(fc.Path(), "unsupported parameter type %s for field %s", pt.String(), fc.Field.Name)
		}
	}

	out := method.Call(in)
	switch {
	case len(out) == 1:
		return out[0].Interface(), nil
	case len(out) == 2 && mt.Out(1) == errorType:
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, gqlerror.WrapPath(fc.Path(), err)
		}
		return out[0].Interface(), nil
	}

	return nil, gqlerror.ErrorPathf(fc.Path(), "unsupported method signature for field %s", fc.Field.Name)
}
