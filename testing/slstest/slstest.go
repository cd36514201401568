// Package slstest runs serverless function handlers from Go tests against
// the variables declared in a service's serverless.yml.
//
//	func TestHello(t *testing.T) {
//		h := slstest.New(t, "..")
//		resp, err := h.Invoke(t, "hello", nil)
//		...
//	}
package slstest

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/heroku/slstest/lambdawrap"
	"github.com/heroku/slstest/service"
	"github.com/heroku/slstest/slsenv"
)

var skipMissingEnv = os.Getenv("TESTING_SKIP_MISSING_ENV") == "true"

// Harness is a set up slsenv.Environment bound to a test.
type Harness struct {
	Env *slsenv.Environment
}

// New sets up the service found in dir and runs the configured setup
// files. The environment is torn down when the test completes.
//
// A dir without a service definition fails the test, or skips it when
// TESTING_SKIP_MISSING_ENV=true.
func New(tb testing.TB, dir string, opts ...slsenv.Option) *Harness {
	tb.Helper()

	if err := definition(dir); err != nil {
		if skipMissingEnv {
			tb.Skip(err.Error())
		}
		tb.Fatal(err)
	}

	cfg, err := slsenv.LoadConfig()
	if err != nil {
		tb.Fatal(err)
	}
	cfg.Cwd = dir

	logger := logrus.New()
	logger.Out = ioutil.Discard
	env := slsenv.New(cfg, append([]slsenv.Option{slsenv.WithLogger(logger)}, opts...)...)

	if err := env.Setup(context.Background()); err != nil {
		tb.Fatalf("setting up %s: %+v", dir, err)
	}
	tb.Cleanup(func() { env.TearDown() })

	if err := env.RunSetupFiles(); err != nil {
		tb.Fatalf("%+v", err)
	}

	return &Harness{Env: env}
}

// Getenv reads key from the sandbox environment.
func (h *Harness) Getenv(key string) string {
	return h.Env.Global.Process.Getenv(key)
}

// Apply copies the sandbox variables that differ from the process
// environment into it for the duration of the test.
func (h *Harness) Apply(tb testing.TB) {
	tb.Helper()

	for k, v := range h.Env.Global.Process.Environ() {
		if cur, ok := os.LookupEnv(k); ok && cur == v {
			continue
		}
		tb.Setenv(k, v)
	}
}

// Wrapper returns the wrapped handler of functionName, failing the test
// when it cannot be loaded.
func (h *Harness) Wrapper(tb testing.TB, functionName string) *lambdawrap.Wrapped {
	tb.Helper()

	lw := h.Env.Global.LambdaWrapper
	if lw == nil {
		tb.Fatalf("%s was not run, no LambdaWrapper installed", slsenv.BootstrapFile)
	}
	w, err := lw.GetWrapper(functionName)
	if err != nil {
		tb.Fatalf("wrapping %s: %+v", functionName, err)
	}
	return w
}

// Invoke wraps functionName and runs it with event. Errors returned by the
// handler are returned as is.
func (h *Harness) Invoke(tb testing.TB, functionName string, event interface{}) (lambdawrap.Response, error) {
	tb.Helper()
	return h.Wrapper(tb, functionName).Run(context.Background(), event)
}

func definition(dir string) error {
	for _, name := range service.ConfigFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return nil
		}
	}
	return errors.Errorf("no serverless service definition in %s", dir)
}
