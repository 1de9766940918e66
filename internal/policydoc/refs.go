package policydoc

import (
	"fmt"
	"maps"
)

// SchemaIDs indexes every schema declaring an "id" in the policy tree.
func SchemaIDs(policies []Policy) map[string]any {
	ids := make(map[string]any)
	var walk func(v any)
	walk = func(v any) {
		switch v := v.(type) {
		case map[string]any:
			if id, ok := v["id"].(string); ok {
				ids[id] = v
			}
			for _, c := range v {
				walk(c)
			}
		case []any:
			for _, c := range v {
				walk(c)
			}
		}
	}
	var walkPolicies func([]Policy)
	walkPolicies = func(ps []Policy) {
		for _, p := range ps {
			walk(p.Schema)
			walk(p.DescriptionSchema)
			walkPolicies(p.Policies)
		}
	}
	walkPolicies(policies)
	return ids
}

// ResolveRefs returns a copy of schema where each {"$ref": id} node is replaced by the
// schema declaring id. A reference to a schema that is being expanded is left as is.
func ResolveRefs(schema any, ids map[string]any) (any, error) {
	return resolveRefs(schema, ids, make(map[string]bool))
}

func resolveRefs(v any, ids map[string]any, visited map[string]bool) (any, error) {
	switch v := v.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			if visited[ref] {
				return maps.Clone(v), nil
			}
			target, ok := ids[ref]
			if !ok {
				return nil, fmt.Errorf("schema reference %q is not declared", ref)
			}
			visited[ref] = true
			defer delete(visited, ref)
			return resolveRefs(target, ids, visited)
		}

		r := make(map[string]any, len(v))
		for k, c := range v {
			rc, err := resolveRefs(c, ids, visited)
			if err != nil {
				return nil, err
			}
			r[k] = rc
		}
		return r, nil
	case []any:
		r := make([]any, 0, len(v))
		for _, c := range v {
			rc, err := resolveRefs(c, ids, visited)
			if err != nil {
				return nil, err
			}
			r = append(r, rc)
		}
		return r, nil
	}
	return v, nil
}
