package lambdawrap

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/pkg/errors"
)

// ErrHandlerNotFound is the cause of errors for handlers that were never
// registered.
var ErrHandlerNotFound = errors.New("handler not registered")

// Module is the export table of a handler module.
type Module map[string]interface{}

type key struct {
	module string
	export string
}

// Registry maps (module path, export name) pairs to handlers. Module paths
// are relative to the service root, as written in a function's handler,
// e.g. "handler" for "handler.hello".
//
// Handlers are normalized once per key and cached.
type Registry struct {
	mu       sync.Mutex
	modules  map[string]Module
	resolved map[key]lambda.Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:  make(map[string]Module),
		resolved: make(map[key]lambda.Handler),
	}
}

// DefaultRegistry is used by Register, RegisterModule and the sandbox
// LambdaWrapper.
var DefaultRegistry = NewRegistry()

// Register adds a single export to the default registry.
func Register(module, export string, handler interface{}) {
	DefaultRegistry.Register(module, export, handler)
}

// RegisterModule adds every export of mod to the default registry.
func RegisterModule(module string, mod Module) {
	DefaultRegistry.RegisterModule(module, mod)
}

// Register adds handler as module.export, replacing any earlier one.
func (r *Registry) Register(module, export string, handler interface{}) {
	r.RegisterModule(module, Module{export: handler})
}

// RegisterModule adds every export of mod under module.
func (r *Registry) RegisterModule(module string, mod Module) {
	module = cleanModule(module)

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[module]
	if !ok {
		m = make(Module)
		r.modules[module] = m
	}
	for export, h := range mod {
		m[export] = h
		delete(r.resolved, key{module, export})
	}
}

// Module returns a copy of the exports registered under module.
func (r *Registry) Module(module string) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[cleanModule(module)]
	if !ok {
		return nil, false
	}
	out := make(Module, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// Modules lists the registered module paths.
func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.moduleNames()
}

// moduleNames requires r.mu.
func (r *Registry) moduleNames() []string {
	out := make([]string, 0, len(r.modules))
	for m := range r.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the normalized handler for module.export.
func (r *Registry) Lookup(module, export string) (lambda.Handler, error) {
	k := key{cleanModule(module), export}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.resolved[k]; ok {
		return h, nil
	}

	m, ok := r.modules[k.module]
	if !ok {
		return nil, errors.Wrapf(ErrHandlerNotFound, "cannot find module %q (registered: %s)", k.module, strings.Join(r.moduleNames(), ", "))
	}
	fn, ok := m[export]
	if !ok {
		return nil, errors.Wrapf(ErrHandlerNotFound, "module %q has no export %q", k.module, export)
	}

	h, err := newHandler(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s.%s", k.module, export)
	}
	r.resolved[k] = h
	return h, nil
}

// Load resolves module relative to the service root and returns its
// normalized export.
func (r *Registry) Load(root, module, export string) (lambda.Handler, error) {
	if filepath.IsAbs(module) {
		rel, err := filepath.Rel(root, module)
		if err != nil {
			return nil, errors.Wrapf(err, "module %s is not below %s", module, root)
		}
		module = rel
	}

	h, err := r.Lookup(module, export)
	if err != nil {
		return nil, errors.WithMessage(err, "loading handler from "+filepath.Join(root, module))
	}
	return h, nil
}

func cleanModule(module string) string {
	module = path.Clean(filepath.ToSlash(module))
	return strings.TrimPrefix(module, "./")
}
