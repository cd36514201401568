// Package lambdawrap locates function handlers and invokes them the way the
// Lambda runtime would.
//
// Handlers are registered under the module path and export name used in
// serverless.yml:
//
//	func init() {
//		lambdawrap.Register("handler", "hello", Hello)
//	}
//
// Any handler signature accepted by github.com/aws/aws-lambda-go/lambda is
// supported, as is the callback style CallbackHandler.
package lambdawrap

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultExport is the export Wrap uses when Options.Handler is empty.
const DefaultExport = "handler"

// Options select the export of a module to wrap.
type Options struct {
	Handler string
}

// PanicError is returned by Run when the handler panics.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Response is the JSON encoded result of a handler.
type Response []byte

// Decode unmarshals the response into v.
func (r Response) Decode(v interface{}) error {
	return json.Unmarshal(r, v)
}

func (r Response) String() string { return string(r) }

// Wrapped is an invokable handler.
type Wrapped struct {
	// FunctionName is the deployed name of the function, when known.
	FunctionName string
	// Handler is the module.export the handler was loaded from.
	Handler string

	arn     string
	handler lambda.Handler
	environ func() map[string]string
}

// Wrap adapts the export named by opts.Handler in mod.
func Wrap(mod Module, opts Options) (*Wrapped, error) {
	export := opts.Handler
	if export == "" {
		export = DefaultExport
	}

	fn, ok := mod[export]
	if !ok {
		return nil, errors.Wrapf(ErrHandlerNotFound, "module has no export %q", export)
	}
	h, err := newHandler(fn)
	if err != nil {
		return nil, err
	}
	return &Wrapped{Handler: export, handler: h}, nil
}

// Run invokes the handler with event and waits for it to complete. A nil
// event is sent as an empty JSON object; []byte and json.RawMessage events
// are sent as is.
func (w *Wrapped) Run(ctx context.Context, event interface{}) (Response, error) {
	payload, err := marshalEvent(event)
	if err != nil {
		return nil, err
	}

	ctx = lambdacontext.NewContext(ctx, &lambdacontext.LambdaContext{
		AwsRequestID:       uuid.New().String(),
		InvokedFunctionArn: w.arn,
	})
	if w.environ != nil {
		ctx = WithEnv(ctx, w.environ())
	}

	return w.invoke(ctx, payload)
}

func (w *Wrapped) invoke(ctx context.Context, payload []byte) (resp Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			resp, err = nil, &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return w.handler.Invoke(ctx, payload)
}

func marshalEvent(event interface{}) ([]byte, error) {
	switch e := event.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return e, nil
	case []byte:
		return e, nil
	}
	b, err := json.Marshal(event)
	return b, errors.Wrap(err, "encoding event")
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func newHandler(fn interface{}) (lambda.Handler, error) {
	switch h := fn.(type) {
	case nil:
		return nil, errors.New("handler is nil")
	case lambda.Handler:
		return h, nil
	case func(context.Context, json.RawMessage, Callback):
		return CallbackHandler(h), nil
	}

	if err := validateSignature(reflect.TypeOf(fn)); err != nil {
		return nil, err
	}
	return lambda.NewHandler(fn), nil
}

// validateSignature applies the rules lambda.NewHandler enforces at
// invocation time so bad handlers fail when they are loaded.
func validateSignature(t reflect.Type) error {
	if t.Kind() != reflect.Func {
		return errors.Errorf("handler kind %s is not %s", t.Kind(), reflect.Func)
	}

	switch t.NumIn() {
	case 0, 1:
	case 2:
		if !t.In(0).Implements(contextType) {
			return errors.Errorf("handler takes two arguments, but the first is not Context. got %s", t.In(0).Kind())
		}
	default:
		return errors.Errorf("handlers may not take more than two arguments, but handler takes %d", t.NumIn())
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if !t.Out(0).Implements(errorType) {
			return errors.New("handler returns a single value, but it does not implement error")
		}
	case 2:
		if !t.Out(1).Implements(errorType) {
			return errors.New("handler returns two values, but the second does not implement error")
		}
	default:
		return errors.Errorf("handler may not return more than two values")
	}
	return nil
}
