package slsenv

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/heroku/slstest/lambdawrap"
)

// A Bootstrap is a setup file: code run against a fresh Environment before
// any test uses it.
type Bootstrap func(*Environment) error

var (
	bootstrapsMu sync.RWMutex
	bootstraps   = map[string]Bootstrap{
		BootstrapFile: installLambdaWrapper,
	}
)

// RegisterBootstrap makes fn runnable as the setup file name.
func RegisterBootstrap(name string, fn Bootstrap) {
	bootstrapsMu.Lock()
	defer bootstrapsMu.Unlock()
	bootstraps[name] = fn
}

func runBootstrap(name string, e *Environment) error {
	bootstrapsMu.RLock()
	fn, ok := bootstraps[name]
	bootstrapsMu.RUnlock()

	if !ok {
		return errors.Errorf("setup file %q is not registered", name)
	}
	return errors.Wrapf(fn(e), "running setup file %s", name)
}

func installLambdaWrapper(e *Environment) error {
	e.Global.LambdaWrapper = lambdawrap.New(e.Global.source, lambdawrap.DefaultRegistry, e.logger)
	return nil
}
