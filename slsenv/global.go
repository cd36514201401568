package slsenv

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/heroku/slstest/lambdawrap"
	"github.com/heroku/slstest/service"
)

// ErrTornDown is returned when the sandbox registration was removed.
var ErrTornDown = errors.New("ServerlessWrapper is not registered, the environment was torn down")

// Global is the sandbox global scope shared by setup files and tests.
type Global struct {
	Process           *Process
	ServerlessWrapper *ServerlessWrapper
	LambdaWrapper     *lambdawrap.LambdaWrapper
}

// source is handed to the LambdaWrapper so it sees teardown.
func (g *Global) source() (lambdawrap.Source, error) {
	if g.ServerlessWrapper == nil {
		return nil, ErrTornDown
	}
	return g.ServerlessWrapper, nil
}

// ServerlessWrapper is the registration an Environment places on its
// Global: the service constructor, the service root and the live service.
type ServerlessWrapper struct {
	Framework  func(service.Options) *service.Service
	RootDir    string
	Serverless *service.Service

	env    Env
	logger logrus.FieldLogger
}

// NewServerlessWrapper returns a registration for svc whose SetEnv writes
// to env. A nil env means the real process environment.
func NewServerlessWrapper(svc *service.Service, rootDir string, env Env) *ServerlessWrapper {
	if env == nil {
		env = osEnv{}
	}
	return &ServerlessWrapper{
		Framework:  service.New,
		RootDir:    rootDir,
		Serverless: svc,
		env:        env,
		logger:     logrus.StandardLogger(),
	}
}

// GetEnv returns the variables declared by the named function.
func (w *ServerlessWrapper) GetEnv(functionName string) map[string]string {
	return GetEnv(w.Serverless, functionName)
}

// SetEnv merges the variables of the named function into the bound
// environment and returns the resulting environment.
func (w *ServerlessWrapper) SetEnv(functionName string) map[string]string {
	return setEnv(w.env, w.Serverless, functionName, w.logger)
}

// Service implements lambdawrap.Source.
func (w *ServerlessWrapper) Service() *service.Service { return w.Serverless }

// Root implements lambdawrap.Source.
func (w *ServerlessWrapper) Root() string { return w.RootDir }

// Environ implements lambdawrap.Source.
func (w *ServerlessWrapper) Environ() map[string]string { return w.env.Environ() }

// GetEnv returns the variables declared by the named function of svc, or
// an empty map when the function is not declared.
func GetEnv(svc *service.Service, functionName string) map[string]string {
	if svc == nil {
		return map[string]string{}
	}
	fn, ok := svc.Functions[functionName]
	if !ok {
		return map[string]string{}
	}
	return copyEnv(fn.Environment)
}

// SetEnv merges the variables of the named function of svc into the real
// process environment and returns the resulting environment.
func SetEnv(svc *service.Service, functionName string) map[string]string {
	return setEnv(osEnv{}, svc, functionName, logrus.StandardLogger())
}

// setEnv skips keys the environment rejects.
func setEnv(env Env, svc *service.Service, functionName string, logger logrus.FieldLogger) map[string]string {
	if err := env.Merge(GetEnv(svc, functionName)); err != nil {
		logger.WithError(err).WithField("function", functionName).Debug("some function variables were not set")
	}
	return env.Environ()
}
