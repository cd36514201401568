package lambdawrap

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
)

// Callback completes a CallbackHandler invocation. Only the first call has
// any effect.
type Callback func(err error, response interface{})

// CallbackHandler is a handler that reports completion through a callback
// instead of its return values.
//
// The invocation completes on the first of: the callback being called, the
// handler returning, or ctx being done. A handler that returns without
// calling the callback completes with a null response.
type CallbackHandler func(ctx context.Context, event json.RawMessage, cb Callback)

type outcome struct {
	response interface{}
	err      error
}

// Invoke implements lambda.Handler.
func (h CallbackHandler) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	done := make(chan outcome, 1)

	var once sync.Once
	finish := func(o outcome) {
		once.Do(func() { done <- o })
	}

	go func() {
		defer func() {
			if v := recover(); v != nil {
				finish(outcome{err: &PanicError{Value: v, Stack: debug.Stack()}})
			}
		}()

		h(ctx, json.RawMessage(payload), func(err error, response interface{}) {
			finish(outcome{response: response, err: err})
		})
		finish(outcome{})
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		b, err := json.Marshal(o.response)
		return b, errors.Wrap(err, "encoding response")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
