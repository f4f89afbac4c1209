package record

import "context"

// Invoke runs fn as an instrumented call. The error fn returns is passed
// back unchanged. A panic in fn is recorded as an Exception record and then
// re-raised with its original value. fn receives the call's context, which
// carries the call span when the Assembler traces. A nil Assembler runs fn
// directly.
func Invoke[T any](ctx context.Context, a *Assembler, call Call, fn func(context.Context) (T, error)) (T, error) {
	sc := a.Begin(ctx, call)
	ended := false
	defer func() {
		if ended {
			return
		}
		if p := recover(); p != nil {
			sc.EndVoid(&PanicError{Value: p})
			panic(p)
		}
	}()

	result, err := fn(runContext(sc, ctx))
	ended = true
	if err != nil {
		sc.End(nil, err)
	} else {
		sc.End(result, nil)
	}
	return result, err
}

// InvokeVoid is Invoke for functions without a result.
func InvokeVoid(ctx context.Context, a *Assembler, call Call, fn func(context.Context) error) error {
	sc := a.Begin(ctx, call)
	ended := false
	defer func() {
		if ended {
			return
		}
		if p := recover(); p != nil {
			sc.EndVoid(&PanicError{Value: p})
			panic(p)
		}
	}()

	err := fn(runContext(sc, ctx))
	ended = true
	sc.EndVoid(err)
	return err
}

func runContext(sc *Scope, ctx context.Context) context.Context {
	if c := sc.Context(); c != nil {
		return c
	}
	return ctx
}
