package jsonrpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
)

var (
	ErrNotFunction         = errors.New("not a function")
	ErrMustReturnError     = errors.New("function must return error as a last return value")
	ErrMustHaveContext     = errors.New("function must have context.Context as a first argument")
	ErrTooManyReturnValues = errors.New("too many return values")

	ErrTooMuchArguments = errors.New("too much arguments")

	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// method is a function exposed over JSON RPC, args excludes the leading context.
type method struct {
	fn        reflect.Value
	args      []reflect.Type
	hasResult bool
}

func newMethod(fn any) (method, error) {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return method{}, ErrNotFunction
	}
	if fnType.NumIn() == 0 || fnType.In(0) != contextType {
		return method{}, ErrMustHaveContext
	}

	numOut := fnType.NumOut()
	if numOut == 0 || !fnType.Out(numOut-1).Implements(errorType) {
		return method{}, ErrMustReturnError
	}
	if numOut > 2 {
		return method{}, ErrTooManyReturnValues
	}

	args := make([]reflect.Type, 0, fnType.NumIn()-1)
	for i := 1; i < fnType.NumIn(); i++ {
		args = append(args, fnType.In(i))
	}
	return method{
		fn:        reflect.ValueOf(fn),
		args:      args,
		hasResult: numOut == 2,
	}, nil
}

// call decodes params positionally, missing trailing params get zero values.
// The result is returned JSON encoded, methods without a result give null.
func (m method) call(ctx context.Context, params []json.RawMessage) (json.RawMessage, error) {
	args, err := decodeParams(m.args, params)
	if err != nil {
		return nil, err
	}

	results := m.fn.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...))
	if errVal := results[len(results)-1]; !errVal.IsNil() {
		//nolint:forcetypeassert
		return nil, errVal.Interface().(error)
	}
	if !m.hasResult {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(results[0].Interface())
}

func decodeParams(types []reflect.Type, params []json.RawMessage) ([]reflect.Value, error) {
	if len(params) > len(types) {
		return nil, ErrTooMuchArguments
	}

	args := make([]reflect.Value, len(types))
	for i, argType := range types {
		arg := reflect.New(argType)
		if i < len(params) {
			if err := json.Unmarshal(params[i], arg.Interface()); err != nil {
				return nil, err
			}
		}
		args[i] = arg.Elem()
	}
	return args, nil
}
