package service

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MergeArrays collapses the functions and resources blocks, when declared
// as a list of mappings, into a single mapping. Entries are merged deeply:
// mappings merge key by key, any other value of a later entry wins. A list
// entry that is not a mapping is a configuration error.
func (s *Service) MergeArrays() error {
	if s.root == nil {
		return &ConfigError{Msg: "service not initialized"}
	}

	if err := mergeSequence("functions", mappingValue(s.root, "functions")); err != nil {
		return err
	}

	if res := mappingValue(s.root, "resources"); res != nil {
		if err := mergeSequence("resources", res); err != nil {
			return err
		}
		for _, key := range []string{"Resources", "Outputs"} {
			if err := mergeSequence("resources."+key, mappingValue(res, key)); err != nil {
				return err
			}
		}
	}

	if err := s.decode(); err != nil {
		return &ConfigError{Msg: "decoding merged service definition", Err: err}
	}
	return nil
}

// SetFunctionNames names every function without an explicit name
// <service>-<stage>-<key>.
func (s *Service) SetFunctionNames(options map[string]string) {
	stage := options["stage"]
	if stage == "" {
		stage = s.opts.Stage
	}
	if stage == "" {
		stage = s.Provider.Stage
	}
	if stage == "" {
		stage = DefaultStage
	}

	for _, key := range s.order {
		fn := s.Functions[key]
		if fn.Name == "" {
			fn.Name = s.Name + "-" + stage + "-" + key
		}
	}
}

func mergeSequence(field string, n *yaml.Node) error {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}

	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i, item := range n.Content {
		if item.Kind == yaml.AliasNode {
			item = item.Alias
		}
		if item.Kind != yaml.MappingNode {
			return &ConfigError{Msg: fmt.Sprintf("%s[%d] must be an object, got %s", field, i, item.ShortTag())}
		}
		mergeMapping(merged, item)
	}

	line, col := n.Line, n.Column
	*n = *merged
	n.Line, n.Column = line, col
	return nil
}

// mergeMapping merges src into dst. Nested mappings merge recursively;
// scalars and sequences from src replace those in dst. src is not shared
// with dst.
func mergeMapping(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		if val.Kind == yaml.AliasNode {
			val = val.Alias
		}

		cur := mappingValue(dst, key.Value)
		switch {
		case cur != nil && cur.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode:
			mergeMapping(cur, val)
		case cur != nil:
			*cur = *cloneNode(val)
		default:
			dst.Content = append(dst.Content, cloneNode(key), cloneNode(val))
		}
	}
}
