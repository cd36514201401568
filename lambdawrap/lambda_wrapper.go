package lambdawrap

import (
	"github.com/sirupsen/logrus"

	"github.com/heroku/slstest/service"
)

// A Source is the sandbox state a LambdaWrapper resolves functions against.
type Source interface {
	// Service returns the loaded service model.
	Service() *service.Service
	// Root is the service root directory.
	Root() string
	// SetEnv merges the variables of the named function into the sandbox
	// environment and returns the result.
	SetEnv(functionName string) map[string]string
	// Environ returns the current sandbox environment.
	Environ() map[string]string
}

// LambdaWrapper produces wrapped handlers for the functions of a service.
type LambdaWrapper struct {
	source   func() (Source, error)
	registry *Registry
	logger   logrus.FieldLogger
}

// New returns a LambdaWrapper. source is consulted on every GetWrapper call
// so a torn down sandbox is noticed. A nil registry means DefaultRegistry.
func New(source func() (Source, error), registry *Registry, logger logrus.FieldLogger) *LambdaWrapper {
	if registry == nil {
		registry = DefaultRegistry
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LambdaWrapper{
		source:   source,
		registry: registry,
		logger:   logger.WithField("component", "lambdawrap"),
	}
}

// GetWrapper loads the handler of functionName and wraps it. The
// function's variables are applied to the sandbox environment before
// returning so they take priority over variables of previously wrapped
// functions.
func (lw *LambdaWrapper) GetWrapper(functionName string) (*Wrapped, error) {
	src, err := lw.source()
	if err != nil {
		return nil, err
	}
	svc := src.Service()

	fn, err := svc.GetFunction(functionName)
	if err != nil {
		return nil, err
	}
	module, export, err := fn.HandlerParts()
	if err != nil {
		return nil, err
	}

	h, err := lw.registry.Load(src.Root(), module, export)
	if err != nil {
		return nil, err
	}

	w := &Wrapped{
		FunctionName: fn.Name,
		Handler:      fn.Handler,
		arn:          functionARN(svc.Provider.Region, fn.Name),
		handler:      h,
		environ:      src.Environ,
	}

	src.SetEnv(functionName)

	lw.logger.WithFields(logrus.Fields{
		"function": functionName,
		"handler":  fn.Handler,
	}).Debug("wrapped function")

	return w, nil
}

func functionARN(region, name string) string {
	if region == "" {
		region = "us-east-1"
	}
	return "arn:aws:lambda:" + region + ":123456789012:function:" + name
}
