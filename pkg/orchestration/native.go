package orchestration

import (
	"context"
	"fmt"
	"reflect"
)

type argKind int

const (
	argGoContext argKind = iota
	argContext
	argString
)

type resultKind int

const (
	resultNone resultKind = iota
	resultString
	resultContext
)

// nativeShape is the parameter and result layout of a native function,
// computed once at construction.
type nativeShape struct {
	args       []argKind
	result     resultKind
	returnsErr bool
}

var (
	goContextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	contextType   = reflect.TypeOf((*Context)(nil))
	stringType    = reflect.TypeOf("")
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

func inferShape(t reflect.Type) (nativeShape, error) {
	var shape nativeShape
	if t.Kind() != reflect.Func {
		return shape, fmt.Errorf("expected a func, got %s", t)
	}
	if t.IsVariadic() {
		return shape, fmt.Errorf("variadic functions are not supported")
	}

	var seenContext, seenString bool
	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		switch {
		case i == 0 && in == goContextType:
			shape.args = append(shape.args, argGoContext)
		case in == contextType && !seenContext:
			seenContext = true
			shape.args = append(shape.args, argContext)
		case in == stringType && !seenString:
			seenString = true
			shape.args = append(shape.args, argString)
		default:
			return shape, fmt.Errorf("unsupported parameter %d of type %s", i, in)
		}
	}

	outs := t.NumOut()
	if outs > 0 && t.Out(outs-1) == errorType {
		shape.returnsErr = true
		outs--
	}
	switch outs {
	case 0:
	case 1:
		switch t.Out(0) {
		case stringType:
			shape.result = resultString
		case contextType:
			shape.result = resultContext
		default:
			return shape, fmt.Errorf("unsupported result type %s", t.Out(0))
		}
	default:
		return shape, fmt.Errorf("too many results (%d)", t.NumOut())
	}
	return shape, nil
}

// callNative dispatches the native function and applies its result to kctx.
// It returns the Context the pipeline continues with.
func (f *Function) callNative(ctx context.Context, kctx *Context) (out *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = kctx
			err = fmt.Errorf("panic in %s: %v", f.qualifiedName(), r)
		}
	}()

	args := make([]reflect.Value, len(f.shape.args))
	for i, a := range f.shape.args {
		switch a {
		case argGoContext:
			if ctx == nil {
				ctx = context.Background()
			}
			args[i] = reflect.ValueOf(ctx)
		case argContext:
			args[i] = reflect.ValueOf(kctx)
		case argString:
			args[i] = reflect.ValueOf(kctx.Variables.Input())
		}
	}

	results := f.fn.Call(args)
	if f.shape.returnsErr {
		if e := results[len(results)-1]; !e.IsNil() {
			return kctx, e.Interface().(error)
		}
	}

	switch f.shape.result {
	case resultString:
		kctx.Variables.Update(results[0].String())
	case resultContext:
		if next, _ := results[0].Interface().(*Context); next != nil {
			return next, nil
		}
	}
	return kctx, nil
}
