// Package slsenv runs serverless function handlers in an isolated test
// environment populated with the variables declared in serverless.yml.
//
// An Environment owns a sandbox Global: a private copy of the process
// environment plus the ServerlessWrapper registration. Setup loads and
// validates the service and merges every declared variable into the
// sandbox; RunSetupFiles then installs the LambdaWrapper used to invoke
// handlers.
package slsenv

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/heroku/slstest/service"
)

// Option configures an Environment.
type Option func(*options)

type options struct {
	logger  logrus.FieldLogger
	sources map[string]service.Source
}

// WithLogger sets the logger used by the environment and its service.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithSources adds variable sources to the service, see service.Options.
func WithSources(sources map[string]service.Source) Option {
	return func(o *options) { o.sources = sources }
}

// Environment is the sandbox lifecycle adapter.
type Environment struct {
	Global *Global

	config     *Config
	serverless *service.Service
	logger     logrus.FieldLogger
}

// New builds an Environment for cfg. cfg is updated in place: BootstrapFile
// is put at the front of SetupFiles unless present, and the framework's
// build directories are added to CoveragePathIgnorePatterns.
func New(cfg *Config, opts ...Option) *Environment {
	o := options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg.register()

	logger := o.logger.WithField("component", "slsenv")

	svc := service.New(service.Options{
		ServicePath: cfg.Cwd,
		Stage:       cfg.Stage,
		Region:      cfg.Region,
		Interactive: false,
		Sources:     o.sources,
		Logger:      o.logger,
	})

	process := NewProcess()
	process.Setenv(MarkerVar, "true")

	wrapper := NewServerlessWrapper(svc, cfg.Cwd, process)
	wrapper.logger = logger

	return &Environment{
		Global: &Global{
			Process:           process,
			ServerlessWrapper: wrapper,
		},
		config:     cfg,
		serverless: svc,
		logger:     logger,
	}
}

// Config returns the configuration the environment was built from.
func (e *Environment) Config() *Config { return e.config }

// Setup loads, populates and validates the service, then merges the
// provider variables and the variables of every function, in declaration
// order, into the sandbox environment. When two functions declare the same
// key the later one wins; use SetEnv to select a function's values.
func (e *Environment) Setup(ctx context.Context) error {
	sw := e.Global.ServerlessWrapper
	if sw == nil {
		return ErrTornDown
	}
	svc := sw.Serverless

	if err := svc.Init(ctx); err != nil {
		return err
	}
	if err := svc.Variables.PopulateService(ctx, map[string]string{}); err != nil {
		return err
	}
	if err := svc.MergeArrays(); err != nil {
		return err
	}
	svc.SetFunctionNames(map[string]string{})
	if err := svc.Validate(); err != nil {
		return err
	}

	vars := copyEnv(svc.Provider.Environment)
	for _, name := range svc.GetAllFunctions() {
		for k, v := range sw.GetEnv(name) {
			vars[k] = v
		}
	}
	if err := e.Global.Process.Merge(vars); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"service":   svc.Name,
		"functions": len(svc.Functions),
		"variables": len(vars),
	}).Debug("environment ready")

	return nil
}

// RunSetupFiles runs the registered bootstraps named in the config's
// SetupFiles, in order.
func (e *Environment) RunSetupFiles() error {
	for _, name := range e.config.SetupFiles {
		if err := runBootstrap(name, e); err != nil {
			return err
		}
	}
	return nil
}

// TearDown removes the ServerlessWrapper registration. It never fails.
func (e *Environment) TearDown() error {
	e.Global.ServerlessWrapper = nil
	return nil
}

// GetEnv returns the variables declared by the named function. Once torn
// down it reads the environment's own service instance.
func (e *Environment) GetEnv(functionName string) map[string]string {
	if sw := e.Global.ServerlessWrapper; sw != nil {
		return sw.GetEnv(functionName)
	}
	return GetEnv(e.serverless, functionName)
}

// SetEnv merges the variables of the named function into the sandbox
// environment, or into the real process environment once torn down, and
// returns the resulting environment. Variables accumulate across calls.
func (e *Environment) SetEnv(functionName string) map[string]string {
	if sw := e.Global.ServerlessWrapper; sw != nil {
		return sw.SetEnv(functionName)
	}
	return SetEnv(e.serverless, functionName)
}
