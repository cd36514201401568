package service

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxDepth bounds nested and self-referencing variable resolution.
const maxDepth = 10

// maxPasses bounds the substitutions performed on a single value.
const maxPasses = 100

// refPattern matches an innermost ${...} reference.
var refPattern = regexp.MustCompile(`\$\{([^${}]+)\}`)

var sourcePattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*):(.*)$`)

// Variables resolves ${source:address, fallback} references in a service
// definition.
type Variables struct {
	svc     *Service
	sources map[string]Source
	options map[string]string
	files   map[string]*yaml.Node
}

func newVariables(svc *Service) *Variables {
	sources := map[string]Source{
		"env": EnvSource{},
		"s3":  &S3Source{Region: svc.opts.Region},
		"ssm": &SSMSource{Region: svc.opts.Region},
	}
	for prefix, src := range svc.opts.Sources {
		sources[prefix] = src
	}

	return &Variables{
		svc:     svc,
		sources: sources,
		files:   make(map[string]*yaml.Node),
	}
}

// PopulateService resolves every variable reference in the service
// definition. options back the opt: source; the service's configured stage
// and region are used when options omit them.
func (v *Variables) PopulateService(ctx context.Context, options map[string]string) error {
	if v.svc.root == nil {
		return &ConfigError{Msg: "service not initialized"}
	}

	v.options = make(map[string]string, len(options)+2)
	if v.svc.opts.Stage != "" {
		v.options["stage"] = v.svc.opts.Stage
	}
	if v.svc.opts.Region != "" {
		v.options["region"] = v.svc.opts.Region
	}
	for k, val := range options {
		v.options[k] = val
	}

	if err := v.populateNode(ctx, v.svc.root, 0); err != nil {
		return err
	}
	return v.svc.decode()
}

// Populate resolves the references in a single value.
func (v *Variables) Populate(ctx context.Context, value string) (string, error) {
	if v.svc.root == nil {
		return "", &ConfigError{Msg: "service not initialized"}
	}
	n, err := v.populateString(ctx, value, 0)
	if err != nil {
		return "", err
	}
	if n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return "", nil
	}
	return n.Value, nil
}

func (v *Variables) populateNode(ctx context.Context, n *yaml.Node, depth int) error {
	if depth > maxDepth {
		return &ConfigError{Msg: "maximum variable depth exceeded, check for circular references"}
	}

	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := v.populateNode(ctx, c, depth); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			if err := v.populateNode(ctx, n.Content[i], depth); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if !strings.Contains(n.Value, "${") {
			return nil
		}
		resolved, err := v.populateString(ctx, n.Value, depth)
		if err != nil {
			return err
		}
		line, col := n.Line, n.Column
		*n = *resolved
		n.Line, n.Column = line, col
	}
	return nil
}

func (v *Variables) populateString(ctx context.Context, s string, depth int) (*yaml.Node, error) {
	for pass := 0; ; pass++ {
		if pass > maxPasses {
			return nil, &ConfigError{Msg: "too many variable substitutions in " + quote(s)}
		}

		loc := refPattern.FindStringSubmatchIndex(s)
		if loc == nil {
			return stringNode(s), nil
		}
		expr := s[loc[2]:loc[3]]

		val, err := v.resolveExpr(ctx, expr, depth)
		if err != nil {
			return nil, err
		}

		if loc[0] == 0 && loc[1] == len(s) {
			if val == nil {
				return nullNode(), nil
			}
			if val.Kind == yaml.ScalarNode && strings.Contains(val.Value, "${") {
				s = val.Value
				continue
			}
			return val, nil
		}

		var str string
		if val != nil {
			if val.Kind != yaml.ScalarNode {
				return nil, &ConfigError{Msg: "trying to populate non string value into a string for variable ${" + expr + "}"}
			}
			if val.ShortTag() != "!!null" {
				str = val.Value
			}
		}
		s = s[:loc[0]] + str + s[loc[1]:]
	}
}

// resolveExpr resolves the first term of a comma separated list that yields
// a value. A nil node means nothing matched.
func (v *Variables) resolveExpr(ctx context.Context, expr string, depth int) (*yaml.Node, error) {
	for _, term := range splitTerms(expr) {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		n, err := v.resolveTerm(ctx, term, depth)
		if err != nil {
			return nil, err
		}
		if n != nil && n.ShortTag() != "!!null" {
			return n, nil
		}
	}

	v.svc.logger.WithField("variable", "${"+expr+"}").
		Warn("a valid value to satisfy the declaration could not be found")
	return nil, nil
}

func (v *Variables) resolveTerm(ctx context.Context, term string, depth int) (*yaml.Node, error) {
	if lit, ok := literal(term); ok {
		return lit, nil
	}

	if strings.HasPrefix(term, "file(") {
		return v.resolveFile(ctx, term, depth)
	}

	m := sourcePattern.FindStringSubmatch(term)
	if m == nil {
		return nil, &ConfigError{Msg: "invalid variable reference syntax for variable " + term}
	}
	prefix, address := m[1], strings.TrimSpace(m[2])

	switch prefix {
	case "self":
		var path []string
		if address != "" {
			path = strings.Split(address, ".")
		}
		return v.cloneResolved(ctx, lookupPath(v.svc.root, path), depth)
	case "opt":
		if val, ok := v.options[address]; ok {
			return stringNode(val), nil
		}
		return nil, nil
	}

	src, ok := v.sources[prefix]
	if !ok {
		return nil, &ConfigError{Msg: "unsupported variable source " + quote(prefix) + " in " + term}
	}
	val, found, err := src.Resolve(ctx, address)
	if err != nil {
		return nil, &ConfigError{Msg: "resolving " + term, Err: err}
	}
	if !found {
		return nil, nil
	}
	return stringNode(val), nil
}

// resolveFile handles file(path) and file(path):key.
func (v *Variables) resolveFile(ctx context.Context, term string, depth int) (*yaml.Node, error) {
	end := strings.Index(term, ")")
	if end < 0 {
		return nil, &ConfigError{Msg: "invalid file reference " + term}
	}
	rel := strings.Trim(strings.TrimSpace(term[len("file("):end]), `'"`)
	rest := strings.TrimSpace(term[end+1:])

	var path []string
	if rest != "" {
		if !strings.HasPrefix(rest, ":") {
			return nil, &ConfigError{Msg: "invalid file reference " + term}
		}
		if key := strings.TrimSpace(rest[1:]); key != "" {
			path = strings.Split(key, ".")
		}
	}

	root, err := v.loadFile(rel)
	if err != nil || root == nil {
		return nil, err
	}
	return v.cloneResolved(ctx, lookupPath(root, path), depth)
}

func (v *Variables) loadFile(rel string) (*yaml.Node, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.svc.opts.ServicePath, rel)
	}
	if n, ok := v.files[path]; ok {
		return n, nil
	}

	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		v.svc.logger.WithField("file", rel).Warn("referenced file does not exist")
		v.files[path] = nil
		return nil, nil
	}
	if err != nil {
		return nil, &ConfigError{Msg: "reading " + rel, Err: err}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, &ConfigError{Msg: "parsing " + rel, Err: err}
	}
	var root *yaml.Node
	if len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	v.files[path] = root
	return root, nil
}

// cloneResolved copies n and resolves any references it carries.
func (v *Variables) cloneResolved(ctx context.Context, n *yaml.Node, depth int) (*yaml.Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	c := cloneNode(n)
	if err := v.populateNode(ctx, c, depth+1); err != nil {
		return nil, err
	}
	return c, nil
}

func literal(term string) (*yaml.Node, bool) {
	if len(term) >= 2 {
		q := term[0]
		if (q == '\'' || q == '"') && term[len(term)-1] == q {
			return stringNode(term[1 : len(term)-1]), true
		}
	}
	if _, err := strconv.ParseInt(term, 10, 64); err == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: term}, true
	}
	if _, err := strconv.ParseFloat(term, 64); err == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: term}, true
	}
	if term == "true" || term == "false" {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: term}, true
	}
	return nil, false
}

// splitTerms splits on commas outside quotes and parentheses.
func splitTerms(expr string) []string {
	var (
		terms []string
		q     byte
		paren int
		start int
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case q != 0:
			if c == q {
				q = 0
			}
		case c == '\'' || c == '"':
			q = c
		case c == '(':
			paren++
		case c == ')':
			if paren > 0 {
				paren--
			}
		case c == ',' && paren == 0:
			terms = append(terms, expr[start:i])
			start = i + 1
		}
	}
	return append(terms, expr[start:])
}

func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""}
}

func cloneNode(n *yaml.Node) *yaml.Node {
	c := *n
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = cloneNode(child)
		}
	}
	return &c
}
