package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resolver fetches workspace variables/resources by path, the other side
// of the `$var:`/`$res:` transforms. The HTTP-backed
// implementation lives outside this module's scope; tests use a map-backed
// fake.
type Resolver interface {
	GetVariable(path string) (string, error)
	GetResource(path string) (json.RawMessage, error)
}

const (
	varPrefix = "$var:"
	resPrefix = "$res:"
)

// TransformArgs walks args recursively, replacing any string leaf of the
// form "$var:<path>" with the resolved variable value and "$res:<path>"
// with the recursively-transformed resource.
func TransformArgs(args json.RawMessage, r Resolver) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return nil, fmt.Errorf("decoding args: %w", err)
	}
	out, err := transformValue(v, r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func transformValue(v interface{}, r Resolver) (interface{}, error) {
	switch val := v.(type) {
	case string:
		switch {
		case strings.HasPrefix(val, varPrefix):
			return r.GetVariable(strings.TrimPrefix(val, varPrefix))
		case strings.HasPrefix(val, resPrefix):
			raw, err := r.GetResource(strings.TrimPrefix(val, resPrefix))
			if err != nil {
				return nil, err
			}
			var inner interface{}
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("decoding resource: %w", err)
			}
			return transformValue(inner, r)
		default:
			return val, nil
		}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			transformed, err := transformValue(elem, r)
			if err != nil {
				return nil, err
			}
			out[k] = transformed
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			transformed, err := transformValue(elem, r)
			if err != nil {
				return nil, err
			}
			out[i] = transformed
		}
		return out, nil
	default:
		return val, nil
	}
}
