// Package service loads serverless framework service definitions.
//
// A Service is built in stages mirroring the framework's own lifecycle:
//
//	svc := service.New(service.Options{ServicePath: dir})
//	err := svc.Init(ctx)
//	err = svc.Variables.PopulateService(ctx, nil)
//	err = svc.MergeArrays()
//	svc.SetFunctionNames(nil)
//	err = svc.Validate()
//
// Until Init succeeds the Service has no functions.
package service

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultStage is used when neither options nor the provider name a stage.
const DefaultStage = "dev"

// ConfigFiles are the file names Init looks for, in order.
var ConfigFiles = []string{"serverless.yml", "serverless.yaml", "serverless.json"}

// Options configure a Service.
type Options struct {
	// ServicePath is the directory holding the service definition.
	ServicePath string
	Stage       string
	Region      string
	Interactive bool

	// Sources adds or replaces variable sources keyed by prefix, e.g. "ssm".
	Sources map[string]Source

	Logger logrus.FieldLogger
}

// Provider is the provider block of a service.
type Provider struct {
	Name        string
	Runtime     string
	Stage       string
	Region      string
	Environment map[string]string
}

// Function is one entry of the functions block.
type Function struct {
	// Key is the name the function is declared under.
	Key         string
	Name        string
	Handler     string
	Runtime     string
	Environment map[string]string
	Events      []interface{}
}

// HandlerParts splits Handler into the module path and the export name.
func (f *Function) HandlerParts() (module, export string, err error) {
	return SplitHandler(f.Handler)
}

// Service is a parsed serverless service definition.
type Service struct {
	Name      string
	Provider  Provider
	Functions map[string]*Function
	Custom    map[string]interface{}

	Variables *Variables

	// Path is the service definition file, set by Init.
	Path string

	opts   Options
	logger logrus.FieldLogger
	root   *yaml.Node
	order  []string
}

// New returns an unloaded Service for opts.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Service{
		Functions: make(map[string]*Function),
		opts:      opts,
		logger:    logger.WithField("component", "service"),
	}
	s.Variables = newVariables(s)
	return s
}

// Init reads the service definition from the service path.
func (s *Service) Init(ctx context.Context) error {
	if s.opts.ServicePath == "" {
		return &ConfigError{Msg: "no service path configured"}
	}

	path, err := findConfigFile(s.opts.ServicePath)
	if err != nil {
		return err
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return &ConfigError{Msg: "reading service definition", Err: err}
	}

	root, err := parseDocument(b)
	if err != nil {
		return &ConfigError{Msg: "parsing " + filepath.Base(path), Err: err}
	}

	s.Path = path
	s.root = root
	s.logger.WithField("path", path).Debug("loaded service definition")

	return s.decode()
}

// GetFunction returns the function declared under name.
func (s *Service) GetFunction(name string) (*Function, error) {
	if fn, ok := s.Functions[name]; ok {
		return fn, nil
	}
	return nil, &ConfigError{Msg: "Function \"" + name + "\" doesn't exist in this Service"}
}

// GetAllFunctions returns the function keys in declaration order.
func (s *Service) GetAllFunctions() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func findConfigFile(dir string) (string, error) {
	for _, name := range ConfigFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &ConfigError{Msg: "no serverless service definition found in " + dir, Err: ErrServiceNotFound}
}

func parseDocument(b []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("service definition must be a mapping")
	}
	return root, nil
}

type providerDef struct {
	Name        string    `yaml:"name"`
	Runtime     string    `yaml:"runtime"`
	Stage       string    `yaml:"stage"`
	Region      string    `yaml:"region"`
	Environment yaml.Node `yaml:"environment"`
}

type functionDef struct {
	Name        string    `yaml:"name"`
	Handler     string    `yaml:"handler"`
	Runtime     string    `yaml:"runtime"`
	Environment yaml.Node `yaml:"environment"`
	Events      yaml.Node `yaml:"events"`
}

// decode rebuilds the typed view from the node tree.
func (s *Service) decode() error {
	var def struct {
		Service   yaml.Node              `yaml:"service"`
		Provider  providerDef            `yaml:"provider"`
		Functions yaml.Node              `yaml:"functions"`
		Custom    map[string]interface{} `yaml:"custom"`
	}
	if err := s.root.Decode(&def); err != nil {
		return &ConfigError{Msg: "decoding service definition", Err: err}
	}

	s.Name = serviceName(&def.Service)
	s.Custom = def.Custom
	s.Provider = Provider{
		Name:        def.Provider.Name,
		Runtime:     def.Provider.Runtime,
		Stage:       def.Provider.Stage,
		Region:      def.Provider.Region,
		Environment: environment(&def.Provider.Environment),
	}

	s.Functions = make(map[string]*Function)
	s.order = s.order[:0]

	fns := &def.Functions
	if fns.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(fns.Content); i += 2 {
		key := fns.Content[i].Value

		var fd functionDef
		if err := fns.Content[i+1].Decode(&fd); err != nil {
			return &ConfigError{Msg: "decoding function " + key, Err: err}
		}

		// Events that are not a list are reported by Validate.
		var events []interface{}
		if fd.Events.Kind == yaml.SequenceNode {
			if err := fd.Events.Decode(&events); err != nil {
				return &ConfigError{Msg: "decoding events of function " + key, Err: err}
			}
		}

		if _, dup := s.Functions[key]; !dup {
			s.order = append(s.order, key)
		}
		s.Functions[key] = &Function{
			Key:         key,
			Name:        fd.Name,
			Handler:     fd.Handler,
			Runtime:     fd.Runtime,
			Environment: environment(&fd.Environment),
			Events:      events,
		}
	}
	return nil
}

func serviceName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.MappingNode:
		if v := mappingValue(n, "name"); v != nil {
			return v.Value
		}
	}
	return ""
}

// environment flattens a mapping of scalars. Null values are dropped and
// non-scalar values are left for Validate to report.
func environment(n *yaml.Node) map[string]string {
	env := make(map[string]string)
	if n.Kind != yaml.MappingNode {
		return env
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := n.Content[i+1]
		if v.Kind != yaml.ScalarNode || v.ShortTag() == "!!null" {
			continue
		}
		env[n.Content[i].Value] = v.Value
	}
	return env
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// lookupPath walks a dotted path through mappings and sequences.
func lookupPath(n *yaml.Node, path []string) *yaml.Node {
	for _, p := range path {
		if n == nil {
			return nil
		}
		switch n.Kind {
		case yaml.MappingNode:
			n = mappingValue(n, p)
		case yaml.SequenceNode:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(n.Content) {
				return nil
			}
			n = n.Content[i]
		case yaml.AliasNode:
			n = lookupPath(n.Alias, []string{p})
		default:
			return nil
		}
	}
	return n
}
