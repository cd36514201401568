package service

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/serverless.schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Validate checks the service definition against the service schema and
// the constraints the typed model relies on.
func (s *Service) Validate() error {
	if s.root == nil {
		return &ConfigError{Msg: "service not initialized"}
	}

	var doc interface{}
	if err := s.root.Decode(&doc); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	sort.Strings(problems)

	names := make(map[string]string)
	for _, key := range s.order {
		fn := s.Functions[key]
		if fn.Handler != "" {
			if _, _, err := fn.HandlerParts(); err != nil {
				problems = append(problems, fmt.Sprintf("functions.%s.handler: %s", key, err))
			}
		}
		if fn.Name == "" {
			continue
		}
		if other, dup := names[fn.Name]; dup {
			problems = append(problems, fmt.Sprintf("functions %s and %s share the name %s", other, key, fn.Name))
			continue
		}
		names[fn.Name] = key
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
