package jsonmerge

import (
	"fmt"
	"sort"
)

// GetSchema derives the schema of merged documents from the merge schema.
// Merge annotations are removed. Nodes using the version strategy become arrays of
// {"value": ...} entries, extended with the metadata schema when given.
func (m *Merger) GetSchema(metaSchema map[string]any) (map[string]any, error) {
	out, err := m.outputSchema(m.raw, "", metaSchema)
	if err != nil {
		return nil, err
	}

	for _, defs := range []string{"definitions", "$defs"} {
		d, ok := m.raw[defs].(map[string]any)
		if !ok {
			continue
		}
		walked := make(map[string]any, len(d))
		for _, k := range sortedKeys(d) {
			sub, err := m.outputSchema(d[k], "/"+defs+"/"+escapePointer(k), metaSchema)
			if err != nil {
				return nil, err
			}
			walked[k] = sub
		}
		out[defs] = walked
	}
	return out, nil
}

func (m *Merger) outputSchema(raw any, path string, metaSchema map[string]any) (map[string]any, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}

	// References are kept as is: their target is rewritten where it is defined.
	if _, ok := obj["$ref"]; ok {
		return deepCopy(obj).(map[string]any), nil
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "mergeStrategy" || k == "mergeOptions" {
			continue
		}
		out[k] = deepCopy(v)
	}

	name, _ := obj["mergeStrategy"].(string)
	if name == "" {
		name = "objectMerge"
	}
	strategy, err := m.lookupStrategy(name, path)
	if err != nil {
		return nil, err
	}

	switch strategy.Kind {
	case Overwrite, Discard, Append:
		return out, nil
	case Custom:
		opts, _ := obj["mergeOptions"].(map[string]any)
		return strategy.Custom.OutputSchema(out, opts)
	case Version:
		return m.versionSchema(obj, out, path, metaSchema)
	case ArrayMergeByID, ArrayMergeByIndex:
		if err := m.walkItems(obj, out, path, metaSchema); err != nil {
			return nil, err
		}
		return out, nil
	case ObjectMerge:
		if err := m.walkProperties(obj, out, path, metaSchema); err != nil {
			return nil, err
		}
		if err := m.walkItems(obj, out, path, metaSchema); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, SchemaError{Msg: fmt.Sprintf("unsupported strategy %q", name), Path: path}
}

func (m *Merger) versionSchema(obj, stripped map[string]any, path string, metaSchema map[string]any) (map[string]any, error) {
	s := &Schema{path: path}
	if o, ok := obj["mergeOptions"].(map[string]any); ok {
		s.options = o
	}
	opts, err := s.versionOptions()
	if err != nil {
		return nil, err
	}

	props := map[string]any{}
	meta := metaSchema
	if opts.MetadataSchema != nil {
		meta = opts.MetadataSchema
	}
	if mp, ok := meta["properties"].(map[string]any); ok {
		for k, v := range mp {
			props[k] = deepCopy(v)
		}
	}
	props["value"] = stripped

	out := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
		},
	}
	if opts.Limit > 0 {
		out["maxItems"] = opts.Limit
	}
	return out, nil
}

func (m *Merger) walkProperties(obj, out map[string]any, path string, metaSchema map[string]any) error {
	for _, kw := range []string{"properties", "patternProperties"} {
		props, ok := obj[kw].(map[string]any)
		if !ok {
			continue
		}
		walked := make(map[string]any, len(props))
		for _, k := range sortedKeys(props) {
			sub, err := m.outputSchema(props[k], path+"/"+kw+"/"+escapePointer(k), metaSchema)
			if err != nil {
				return err
			}
			walked[k] = sub
		}
		out[kw] = walked
	}

	if add, ok := obj["additionalProperties"].(map[string]any); ok {
		sub, err := m.outputSchema(add, path+"/additionalProperties", metaSchema)
		if err != nil {
			return err
		}
		out["additionalProperties"] = sub
	}
	return nil
}

func (m *Merger) walkItems(obj, out map[string]any, path string, metaSchema map[string]any) error {
	switch items := obj["items"].(type) {
	case map[string]any:
		sub, err := m.outputSchema(items, path+"/items", metaSchema)
		if err != nil {
			return err
		}
		out["items"] = sub
	case []any:
		walked := make([]any, 0, len(items))
		for i, it := range items {
			sub, err := m.outputSchema(it, fmt.Sprintf("%s/items/%d", path, i), metaSchema)
			if err != nil {
				return err
			}
			walked = append(walked, sub)
		}
		out["items"] = walked
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
